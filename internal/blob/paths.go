package blob

import (
	"path"
	"strings"
	"unicode"
)

// AllowedExtensions is the upload allow-list, lowercase and without the dot
var AllowedExtensions = map[string]bool{
	"pdf": true, "png": true, "jpg": true, "jpeg": true, "gif": true,
	"mp4": true, "mov": true, "mp3": true, "wav": true,
	"doc": true, "docx": true, "txt": true,
}

// AllowedFile reports whether filename carries an allowed extension
func AllowedFile(filename string) bool {
	i := strings.LastIndex(filename, ".")
	if i < 0 || i == len(filename)-1 {
		return false
	}
	return AllowedExtensions[strings.ToLower(filename[i+1:])]
}

// SanitizeFilename reduces a client supplied name to a safe single path
// segment of ASCII letters, digits, '_', '-' and '.'. Separators and runs of
// whitespace become '_'. It returns "" when nothing usable remains.
func SanitizeFilename(name string) string {
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	fields := strings.FieldsFunc(name, unicode.IsSpace)
	joined := strings.Join(fields, "_")

	var b strings.Builder
	for _, r := range joined {
		switch {
		case r > unicode.MaxASCII:
			continue
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-', r == '.':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}

// DestinationPath builds uploads/<project|general>/<series>/<episode>/<file>.
// Empty series or episode segments are skipped.
func DestinationPath(projectID, seriesID, episodeID, filename string) string {
	if projectID == "" {
		projectID = "general"
	}
	parts := []string{"uploads", SanitizeFilename(projectID)}
	if seriesID != "" {
		parts = append(parts, SanitizeFilename(seriesID))
	}
	if episodeID != "" {
		parts = append(parts, SanitizeFilename(episodeID))
	}
	parts = append(parts, filename)
	return path.Join(parts...)
}
