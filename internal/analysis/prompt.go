package analysis

import (
	"fmt"
	"strings"
)

const analysisSystemPrompt = `あなたは学校と地域の子どもの安全を評価するアナリストです。
与えられた学校名・地域と参考情報だけを根拠に、事実と推測を区別して評価してください。
出力は次の JSON オブジェクトのみとします:
{"risk_score": 0-100 の整数, "level": "low|medium|high", "summary": "200字以内の概要", "factors": ["根拠"], "recommendations": ["保護者向けの助言"]}`

const generateSystemPrompt = `あなたは日本の報道と判例を調べるリサーチャーです。実在し確認できる情報のみを、指示された JSON 配列形式で出力してください。`

func buildAnalysisPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "学校名: %s\n", req.Subject)
	if req.Region != "" {
		fmt.Fprintf(&b, "都道府県: %s\n", req.Region)
	} else {
		b.WriteString("都道府県: 指定なし\n")
	}
	if ctx := strings.TrimSpace(req.Context); ctx != "" {
		b.WriteString("\n参考情報:\n")
		b.WriteString(ctx)
		b.WriteString("\n")
	}
	return b.String()
}
