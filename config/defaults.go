package config

// DefaultPrimaryKeywords gate relevance: an item is kept only if one of these occurs in its text.
var DefaultPrimaryKeywords = []string{
	"虐待", "ネグレクト", "児童", "子ども", "子供", "児童相談所", "保護", "幼児", "乳児", "小学生", "園児",
}

// DefaultSecondaryKeywords only enrich tags.
var DefaultSecondaryKeywords = []string{
	"傷害", "逮捕", "死亡", "暴行", "事件", "容疑", "送検", "起訴", "殺害", "遺体",
}

// DefaultDerivedTags map actor mentions to relationship tags.
var DefaultDerivedTags = []DerivedTagRule{
	{Match: []string{"父親", "父"}, Tag: "実父"},
	{Match: []string{"母親", "母"}, Tag: "実母"},
	{Match: []string{"継父"}, Tag: "継父"},
	{Match: []string{"継母"}, Tag: "継母"},
	{Match: []string{"交際相手"}, Tag: "交際相手"},
}
