package cover

// SearchQuery is the artist/album pair a search session was started with.
// Callers make sure at least one of the two fields is non-empty.
type SearchQuery struct {
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

// Empty reports whether both fields are blank.
func (q SearchQuery) Empty() bool {
	return q.Artist == "" && q.Album == ""
}

// AlbumCandidate is one album as known to one service. Identifier is unique
// within SourceService and opaque to everything except the owning adapter.
// ExtraData carries service specific values such as embedded artwork URLs.
type AlbumCandidate struct {
	Identifier    string         `json:"identifier"`
	AlbumName     string         `json:"album_name"`
	ArtistName    string         `json:"artist_name"`
	SourceService string         `json:"source_service"`
	ExtraData     map[string]any `json:"extra_data,omitempty"`
}

// Extra returns ExtraData[key] as a string or "" when missing.
func (c *AlbumCandidate) Extra(key string) string {
	if c == nil || c.ExtraData == nil {
		return ""
	}
	s, _ := c.ExtraData[key].(string)
	return s
}

// PotentialImage is an image enumerated for a candidate whose dimensions have
// not been verified yet. Source points back at the candidate it belongs to and
// does not own it.
type PotentialImage struct {
	Identifier   string          `json:"identifier"`
	ThumbnailURL string          `json:"thumbnail_url"`
	FullImageURL string          `json:"full_image_url"`
	Source       *AlbumCandidate `json:"-"`
	IsFront      bool            `json:"is_front"`
	OriginalType string          `json:"original_type,omitempty"`
	ExtraData    map[string]any  `json:"extra_data,omitempty"`
}

// Service returns the name of the service owning the image or "" when the
// back-reference is missing.
func (p *PotentialImage) Service() string {
	if p == nil || p.Source == nil {
		return ""
	}
	return p.Source.SourceService
}

// ImageResult is a PotentialImage with verified pixel dimensions. It is the
// value handed to the save collaborator.
type ImageResult struct {
	PotentialImage
	FullWidth              int    `json:"full_width"`
	FullHeight             int    `json:"full_height"`
	AlbumName              string `json:"album_name,omitempty"`
	ArtistName             string `json:"artist_name,omitempty"`
	SourceService          string `json:"source_service"`
	SourcePotentialImageID string `json:"source_potential_image_identifier"`
}

// NewImageResult builds an ImageResult from pi with the given dimensions. The
// album and artist names are copied from the owning candidate. nil is
// returned when either dimension is not positive.
func NewImageResult(pi *PotentialImage, width, height int) *ImageResult {
	if pi == nil || width <= 0 || height <= 0 {
		return nil
	}
	r := &ImageResult{
		PotentialImage:         *pi,
		FullWidth:              width,
		FullHeight:             height,
		SourcePotentialImageID: pi.Identifier,
	}
	if pi.Source != nil {
		r.AlbumName = pi.Source.AlbumName
		r.ArtistName = pi.Source.ArtistName
		r.SourceService = pi.Source.SourceService
	}
	return r
}

// Passes reports whether the image satisfies the minimum dimensions. Both
// bounds are inclusive and a zero bound accepts everything.
func (r *ImageResult) Passes(minWidth, minHeight int) bool {
	if r == nil {
		return false
	}
	return !(r.FullWidth < minWidth || r.FullHeight < minHeight)
}
