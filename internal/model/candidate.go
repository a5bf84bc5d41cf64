package model

// CandidateItem is one scraped thumbnail awaiting deduplication
type CandidateItem struct {
	ImageURL  string `json:"image_url"`                  // Thumbnail to download and hash
	SourceRef string `json:"source_reference,omitempty"` // Originating video/page URL
	RankHint  int    `json:"rank_hint,omitempty"`        // 1-based position, for progress output only
	Likes     string `json:"likes,omitempty"`            // Engagement label as scraped (e.g. "1.2万")
}

// ImageHash is the 64-bit perceptual hash of a thumbnail, rendered as 16 hex chars
type ImageHash string

// UniqueRecord is an item that survived every gate
type UniqueRecord struct {
	Item        CandidateItem  `json:"item"`
	Hash        ImageHash      `json:"phash"`
	Fingerprint FingerprintKey `json:"fingerprint"`
	Attributes  AttributeSet   `json:"attributes"`
	BackupURL   string         `json:"backup_thumbnail_url,omitempty"`
}
