package content

import (
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"Korean Sentences", "안녕하세요. 장성남입니다.", []string{"안녕하세요.", "장성남입니다."}},
		{"No Space", "안녕하세요.장성남입니다.", []string{"안녕하세요.장성남입니다."}},
		{"No Sentence Pattern", "강아지 유치원", []string{"강아지 유치원"}},
		{"Dotted Token Kept", "가.나.다 라마 바사.", []string{"가.나.다 라마 바사."}},
		{"Dotted Token Joins Next", "가.나. 다라 마바.", []string{"가.나. 다라 마바."}},
		{"Abbreviation Joins Next", "e.g. 강아지 호텔 추천. 예약 필수.", []string{"e.g. 강아지 호텔 추천.", "예약 필수."}},
		{"Dotted Token Mid Text", "주차 가능. 가.나. 다라 마바.", []string{"주차 가능.", "가.나. 다라 마바."}},
		{"Trailing Fragment", "매일 운영합니다! 예약 필수? 주차 가능", []string{"매일 운영합니다!", "예약 필수?", "주차 가능"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRemoveDuplicates(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"Contained Text Dropped", []string{"강남 애견 호텔", "강남 애견 호텔 추천"}, []string{"강남 애견 호텔 추천"}},
		{"Equal Length Distinct Kept", []string{"강아지 호텔", "고양이 호텔"}, []string{"강아지 호텔", "고양이 호텔"}},
		{"Whitespace And Case Ignored", []string{"Dog Hotel", "dog  hotel", "DOGHOTEL"}, []string{"Dog Hotel"}},
		{"Empty Skipped", []string{"  ", "유치원"}, []string{"유치원"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RemoveDuplicates(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("RemoveDuplicates(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  hello \n\t world  ", "hello world"},
		{`line\nbreak`, "line break"},
		{`say \"hi\"`, `say "hi"`},
		{`back\slash`, "backslash"},
		{"non breaking", "non breaking"},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripNoise(t *testing.T) {
	src := `<html><head><title>t</title></head><body>
		<!-- tracking -->
		<script>alert(1)</script><style>p{}</style><noscript>n</noscript>
		<p onclick="x()">본문</p>
		<a href="javascript:void(0)">js</a><a href="/menu">menu</a>
		<iframe src="x"></iframe>
	</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	StripNoise(doc)

	out, _ := doc.Html()
	for _, banned := range []string{"tracking", "alert", "p{}", "<noscript", "onclick", "javascript:", "<iframe", "<title"} {
		if strings.Contains(out, banned) {
			t.Errorf("expected %q to be stripped, got:\n%s", banned, out)
		}
	}
	if !strings.Contains(out, `href="/menu"`) || !strings.Contains(out, "본문") {
		t.Errorf("content removed by mistake:\n%s", out)
	}
}
