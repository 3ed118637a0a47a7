package music

import (
	"strings"

	"github.com/victornm/songparty/internal/domain"
)

var builtinSongs = []domain.Song{
	{ID: domain.SyntheticSongPrefix + "bohemian-rhapsody", Title: "Bohemian Rhapsody", Artist: "Queen"},
	{ID: domain.SyntheticSongPrefix + "dancing-queen", Title: "Dancing Queen", Artist: "ABBA"},
	{ID: domain.SyntheticSongPrefix + "billie-jean", Title: "Billie Jean", Artist: "Michael Jackson"},
	{ID: domain.SyntheticSongPrefix + "hey-jude", Title: "Hey Jude", Artist: "The Beatles"},
	{ID: domain.SyntheticSongPrefix + "smells-like-teen-spirit", Title: "Smells Like Teen Spirit", Artist: "Nirvana"},
	{ID: domain.SyntheticSongPrefix + "rolling-in-the-deep", Title: "Rolling in the Deep", Artist: "Adele"},
	{ID: domain.SyntheticSongPrefix + "mr-brightside", Title: "Mr. Brightside", Artist: "The Killers"},
	{ID: domain.SyntheticSongPrefix + "africa", Title: "Africa", Artist: "Toto"},
	{ID: domain.SyntheticSongPrefix + "take-on-me", Title: "Take On Me", Artist: "a-ha"},
	{ID: domain.SyntheticSongPrefix + "dont-stop-me-now", Title: "Don't Stop Me Now", Artist: "Queen"},
	{ID: domain.SyntheticSongPrefix + "wonderwall", Title: "Wonderwall", Artist: "Oasis"},
	{ID: domain.SyntheticSongPrefix + "uptown-funk", Title: "Uptown Funk", Artist: "Mark Ronson, Bruno Mars"},
}

// searchBuiltin matches the query against title and artist of the built-in songs.
func searchBuiltin(query string, limit int) []domain.Song {
	q := strings.ToLower(strings.TrimSpace(query))

	var out []domain.Song
	for _, s := range builtinSongs {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(s.Title), q) || strings.Contains(strings.ToLower(s.Artist), q) {
			out = append(out, s)
		}
	}

	return out
}
