package domain

// Entry is the shape persisted into history storage for one navigation.
type Entry struct {
	Href  string `json:"href"`
	Data  any    `json:"data,omitempty"`
	Stage Stage  `json:"stage,omitempty"`
}
