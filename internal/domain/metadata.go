package domain

type DownloadLink struct {
	Type string `json:"type"` // "PDF", "ePub", "application/zip", ...
	Href string `json:"href"`
}

// Variant is one localized edition of a story
type Variant struct {
	Language string `json:"language"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
}

// RemoteMetadata is the per-item document served by the translations endpoint
type RemoteMetadata struct {
	DownloadLinks []DownloadLink `json:"downloadLinks"`
	Variants      []Variant      `json:"translations"`
}
