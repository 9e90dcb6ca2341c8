package models

// MindMapTopic groups the ideas that share a theme.
type MindMapTopic struct {
	Name  string   `json:"name"`
	Emoji string   `json:"emoji"`
	Ideas []string `json:"ideas"`
}

type MindMapStats struct {
	Chunks          int      `json:"chunks"`
	ProcessedChunks int      `json:"processed_chunks"`
	Ideas           int      `json:"ideas"`
	Models          []string `json:"models"`
}

// MindMap is a two-level hierarchy of ideas. Topics are ordered by size,
// largest first; MainTopic names the first of them.
type MindMap struct {
	MainTopic string         `json:"main_topic"`
	Topics    []MindMapTopic `json:"topics"`
	Stats     MindMapStats   `json:"stats"`
}

// IdeaCount returns the number of ideas across all topics.
func (m *MindMap) IdeaCount() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, t := range m.Topics {
		n += len(t.Ideas)
	}
	return n
}
