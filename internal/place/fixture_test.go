package place

import "fmt"

const fixtureState = `{
	"ROOT_QUERY": {
		"__typename": "Query",
		"placeDetail({\"input\":{\"id\":\"1234\"}})": {"__ref": "PlaceDetail:1234"}
	},
	"PlaceDetail:1234": {
		"base": {"__ref": "PlaceDetailBase:1234"},
		"menuImages": [
			{"imageUrl": "https://img.example.com/menu0.jpg"},
			{"imageUrl": "https://img.example.com/menu1.png"}
		],
		"newBusinessHours": [
			{
				"name": null,
				"businessHours": [
					{"day": "월", "businessHours": {"start": "10:00", "end": "19:00"}},
					{"day": "화", "businessHours": {"start": "10:00", "end": "19:00"}},
					{"day": "수", "businessHours": {"start": "10:00", "end": "20:00"}},
					{"day": "목", "businessHours": {"start": "10:00", "end": "19:00"}},
					{"day": "금", "businessHours": {"start": "10:00", "end": "19:00"}},
					{"day": "토", "businessHours": {"start": "11:00", "end": "17:00"}},
					{"day": "일", "businessHours": null, "description": "정기휴무 (매주 일요일)"}
				]
			},
			{
				"name": "2층 미용실",
				"businessHours": [
					{"day": "매일", "businessHours": {"start": "09:00", "end": "18:00"}}
				]
			}
		],
		"menus": [
			{"__ref": "Menu:1234_0"},
			{"__ref": "Menu:1234_1"},
			{"__ref": "Menu:1234_2"},
			{"__ref": "Menu:missing"}
		],
		"fsasReviews({\"display\":3})": {"total": 57},
		"homepages({\"source\":\"ugc\"})": {
			"repr": {"type": "홈페이지", "url": "https://happydog.example.com"},
			"etc": [{"type": "인스타그램", "url": "https://instagram.com/happydog"}]
		},
		"description({\"source\":[\"shopWindow\"]})": "소형견 전문 유치원입니다.",
		"informationTab({\"source\":\"place\"})": {
			"keywordList": ["강아지유치원", "애견호텔"],
			"parkingInfo": {"basicParking": {"free": true}, "valetParking": null}
		}
	},
	"PlaceDetailBase:1234": {
		"id": "1234",
		"name": "해피독",
		"visitorReviewsTotal": 128,
		"conveniences": ["주차", "무선 인터넷"]
	},
	"Menu:1234_0": {"name": "유치원 종일반", "price": "40000"},
	"Menu:1234_1": {"name": "호텔 1박", "price": 55000},
	"Menu:1234_2": {"name": "상담", "price": ""}
}`

func fixturePage(state string) string {
	return fmt.Sprintf(`<html><head>
<script>window.__PLACE_STATE__ = {"ignored": true};</script>
<script>
	window.__APOLLO_STATE__ = %s;
	window.__NEXT = {"x": 1};
</script>
</head><body><div id="app"></div></body></html>`, state)
}
