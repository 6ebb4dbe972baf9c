// Package emotes builds the emote name to image URL mapping sent to the UI when a channel is joined.
// Lookups go against a small REST directory (global list, channel id resolution, channel list);
// every failure degrades to fewer emotes and never reaches the caller.
package emotes

import (
	"strings"
)

// Mapping maps an emote key (":name:", lower-cased) to its image URL.
type Mapping map[string]string

// Images holds the sized image variants some directories return.
type Images struct {
	URL3x string `json:"url_3x"`
	URL2x string `json:"url_2x"`
	URL1x string `json:"url_1x"`
}

// Record is one emote entry as returned by the directory. Only the fields the
// relay understands are decoded; the rest of the payload is ignored.
type Record struct {
	Name   string  `json:"name"`
	URL    string  `json:"url"`
	Images *Images `json:"images"`
	Src    string  `json:"src"`
}

// ImageURL returns the first usable URL in preference order url, url_3x, url_2x, url_1x, src.
func (r Record) ImageURL() string {
	candidates := []string{r.URL}
	if r.Images != nil {
		candidates = append(candidates, r.Images.URL3x, r.Images.URL2x, r.Images.URL1x)
	}
	candidates = append(candidates, r.Src)
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// Key returns the substitution key for an emote name.
func Key(name string) string {
	return ":" + strings.ToLower(name) + ":"
}

// Merge unions global and channel records into one mapping. Channel entries win on key
// collision. Records lacking a name or an image URL are skipped. Merge is a pure function.
func Merge(global, channel []Record) Mapping {
	out := make(Mapping, len(global)+len(channel))
	for _, set := range [][]Record{global, channel} {
		for _, r := range set {
			name := strings.TrimSpace(r.Name)
			url := r.ImageURL()
			if name == "" || url == "" {
				continue
			}
			out[Key(name)] = url
		}
	}
	return out
}
