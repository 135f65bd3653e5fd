package zpt

// strategyWeights blends the four strategy scores for one zoom.
type strategyWeights struct {
	embed    float64
	keyword  float64
	graph    float64
	temporal float64
}

// weightTable maps each zoom to its combination weights. Detailed zooms lean
// on similarity and keywords; abstract zooms lean on structure and time.
var weightTable = map[Zoom]strategyWeights{
	ZoomMicro:     {embed: 0.8, keyword: 0.6, graph: 0.4, temporal: 0.2},
	ZoomEntity:    {embed: 0.6, keyword: 0.7, graph: 0.7, temporal: 0.4},
	ZoomText:      {embed: 0.7, keyword: 0.8, graph: 0.5, temporal: 0.3},
	ZoomUnit:      {embed: 0.7, keyword: 0.7, graph: 0.5, temporal: 0.4},
	ZoomCommunity: {embed: 0.4, keyword: 0.5, graph: 0.6, temporal: 0.8},
	ZoomCorpus:    {embed: 0.3, keyword: 0.4, graph: 0.5, temporal: 0.9},
}
