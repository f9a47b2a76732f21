package chat

import (
	"regexp"
	"strings"
)

// emotionCues maps keyword patterns to the emotion they nudge. A message may
// match several.
var emotionCues = []struct {
	emotion string
	pattern *regexp.Regexp
}{
	{"trust", regexp.MustCompile(`\b(thank|thanks|grateful|appreciate)\b`)},
	{"love", regexp.MustCompile(`\b(love|heart|care)\b`)},
	{"joy", regexp.MustCompile(`\b(happy|joy|great|awesome|excited)\b`)},
	{"sadness", regexp.MustCompile(`\b(sad|down|depressed|lonely)\b`)},
	{"frustration", regexp.MustCompile(`\b(angry|mad|frustrated|annoyed)\b`)},
	{"seeking", regexp.MustCompile(`\b(help|confused|lost|question)\b`)},
	{"anxiety", regexp.MustCompile(`\b(worry|anxious|stress|nervous)\b`)},
	{"curiosity", regexp.MustCompile(`\b(curious|wonder|interesting)\b`)},
	{"hope", regexp.MustCompile(`\b(hope|hopeful|optimistic)\b`)},
	{"calm", regexp.MustCompile(`\b(calm|peace|relax)\b`)},
}

// DetectEmotions returns the emotions cued by text, in table order.
func DetectEmotions(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, cue := range emotionCues {
		if cue.pattern.MatchString(lower) {
			out = append(out, cue.emotion)
		}
	}
	return out
}
