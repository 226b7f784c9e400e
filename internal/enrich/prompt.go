package enrich

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// SystemPrompt instructs the model to fill the service schema from
// content.json, the service guide and the attached price images.
const SystemPrompt = `너는 데이터 분석 전문가야. 첨부 정보들을 참조하여, 사전에 정의된 구조에 따라 true/false/null/text 값을 정확하게 추출해 줘.

## 입력 구성
- 서비스 안내 → 응답해야 할 서비스 항목 설명
- content.json → 업체 정보 (텍스트 기반으로 병합 분석)
- 이미지 (선택) → 가격표 등 이미지 속 문구를 읽어 정보 추출

## 분석 지침
1. content.json의 내용만 근거로 항목을 채울 것. page_content에는 무관한 내용이 섞일 수 있으니 업체명, 대표 키워드와 관련 없는 내용은 무시할 것
2. 이미지는 이미지 안의 텍스트만 근거로 판단할 것. 레이아웃, 아이콘, 색상만으로 판단하지 말 것
3. 값 규칙
 - true: 서비스나 기능이 직접 명시된 경우
 - false: 없다고 직접 명시되었거나 명백히 반대 의미인 경우
 - null: 관련 언급이 전혀 없는 경우
 - text: 서비스 안내에 없는 기타 사항
4. 추측이나 일반화 금지. 명시 표현이 없으면 반드시 null

## 출력 형식 (유효한 JSON만, 마크다운 없이)
- categories: 유치원, 호텔, 훈련소, 병원, 미용, 카페, 놀이터, 피트니스, 용품샵 중 해당하는 항목 리스트
- services: 서비스 안내의 그룹별 항목 값
- menus: 이용권 정보 리스트 (없으면 빈 리스트). 목욕 추가, 미용 추가 같은 옵션은 note에 기록
  - type: 정기권, 단일권, 횟수권 중 하나
  - name: 상품 이름 (예: "1회(3시간)", "10회권")
  - weight_range: 체중 구간 (없으면 공백, 예: "~5kg", "전체중")
  - price: 숫자 가격
  - count: 횟수 (무제한은 999)
  - package: 포함 서비스 (예: "유치원, 호텔 + 수중 런닝머신 2회")
  - note: 비고 (없으면 null)

{
  "categories": ["유치원", "호텔"],
  "services": {"서비스(강아지)": {"분반": null, "성향분석": true, "기타": "트레드밀"}},
  "menus": [{"type": "단일권", "name": "1회(3시간)", "weight_range": "전체중", "price": 30000, "count": 1, "package": "유치원", "note": "20분 초과 시 1시간 요금"}]
}`

// DefaultServiceGuide is the second system message when no guide file is
// configured.
const DefaultServiceGuide = `## 서비스 안내
- 서비스(강아지): 분반, 성향분석, 행동교정, 산책, 픽업, 알림장, 기타
- 시설: 실내 놀이터, 실외 놀이터, 개별 룸, CCTV, 수영장, 기타
- 돌봄: 24시간 상주, 야간 케어, 투약, 기타`

// SystemMessages returns the prompt followed by the service guide read from
// guideFile, or the built-in guide when guideFile is empty.
func SystemMessages(guideFile string) ([]string, error) {
	guide := DefaultServiceGuide
	if guideFile != "" {
		data, err := os.ReadFile(guideFile)
		if err != nil {
			return nil, eris.Wrapf(err, "read service guide %s", guideFile)
		}
		guide = strings.TrimSpace(string(data))
	}
	return []string{SystemPrompt, guide}, nil
}
