// Package scene maps a story beat plus player/quest context onto a
// structured scene descriptor: classified mood, weather, biome, palette,
// and the generation prompts derived from them.
package scene

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mathrand "math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"sceneforge/pkg/model"
)

// ErrEmptyStoryText is returned when a render request carries no story text.
var ErrEmptyStoryText = errors.New("storyText is required to generate scenes")

const summaryLimit = 320

var whitespaceRe = regexp.MustCompile(`\s+`)

// Synthesizer derives scene descriptors from render requests. Classification
// is deterministic; only heroPose, camera, and the unspecified-time-of-day
// fallback consume randomness, so tests can seed the RNG and assert the rest.
type Synthesizer struct {
	mu  sync.Mutex
	rng *mathrand.Rand
	now func() time.Time
}

// NewSynthesizer creates a Synthesizer backed by the given RNG.
// A nil rng falls back to a time-seeded source.
func NewSynthesizer(rng *mathrand.Rand) *Synthesizer {
	if rng == nil {
		rng = mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
	}
	return &Synthesizer{rng: rng, now: time.Now}
}

// Synthesize builds a full scene descriptor for the request, including the
// internal prompts. It fails only on empty story text.
func (s *Synthesizer) Synthesize(req *model.RenderRequest) (*model.SceneDescriptor, error) {
	if req == nil || req.StoryText == "" {
		return nil, ErrEmptyStoryText
	}

	player := req.Player
	if player.Name == "" {
		player.Name = "Unknown Hero"
	}
	if player.Class == "" {
		player.Class = "Adventurer"
	}
	if player.Level <= 0 {
		player.Level = 1
	}

	mood := inferMood(req.StoryText)
	weather := inferWeather(req.StoryText)
	timeOfDay := s.inferTimeOfDay(req.StoryText)
	palette := selectPalette(mood, req.Genre)
	biome := deriveBiome(req.Genre, req.CurrentLocation)
	summary := storyExcerpt(req.StoryText)

	subtitle := req.CurrentLocation
	if req.ActiveQuest != nil && req.ActiveQuest.Title != "" {
		subtitle = req.ActiveQuest.Title
	}
	if subtitle == "" {
		subtitle = req.Genre
	}

	locationName := req.CurrentLocation
	if locationName == "" {
		locationName = titleCase(biome)
	}

	lighting := "soft bounce light"
	if mood == "intense" || mood == "ominous" {
		lighting = "dramatic rim light"
	}

	hero := model.SceneSubject{
		Name:        player.Name,
		Role:        fmt.Sprintf("Level %d %s", player.Level, player.Class),
		Description: fmt.Sprintf("%s exploring the realm", player.Class),
	}

	var supporting []string
	if req.ActiveQuest != nil && req.ActiveQuest.Description != "" {
		supporting = append(supporting, "Quest focus: "+req.ActiveQuest.Description)
	}
	if req.CurrentLocation != "" {
		supporting = append(supporting, "Location highlight: "+req.CurrentLocation)
	}
	supporting = append(supporting, "Weather tone: "+weather)

	s.mu.Lock()
	heroPose := heroPoses[s.rng.Intn(len(heroPoses))]
	camera := cameraStyles[s.rng.Intn(len(cameraStyles))]
	s.mu.Unlock()

	// A client-supplied key doubles as the scene id, letting the game engine
	// correlate (and the orchestrator dedupe) renders it initiated.
	sceneID := req.PreGeneratedKey
	if sceneID == "" {
		sceneID = newSceneID()
	}

	desc := &model.SceneDescriptor{
		SceneID:           sceneID,
		Title:             fmt.Sprintf("%s's %s Moment", player.Name, titleCase(mood)),
		Subtitle:          subtitle,
		Genre:             req.Genre,
		LocationName:      locationName,
		Biome:             biome,
		Mood:              mood,
		Weather:           weather,
		Lighting:          lighting,
		TimeOfDay:         timeOfDay,
		Palette:           palette,
		HeroPose:          heroPose,
		Camera:            camera,
		Summary:           summary,
		FocalSubjects:     []model.SceneSubject{hero},
		SupportingDetails: supporting,
		Status:            model.StatusPending,
		CreatedAt:         s.now().UTC().Format(time.RFC3339),
		PreGeneratedKey:   req.PreGeneratedKey,
	}
	desc.Prompts = buildPrompts(desc, summary, req.ActiveQuest)
	return desc, nil
}

// newSceneID returns a 24-hex-character opaque identifier.
func newSceneID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("scene id entropy unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}

func inferMood(storyText string) string {
	lowered := strings.ToLower(storyText)
	for _, class := range moodKeywords {
		for _, word := range class.keywords {
			if strings.Contains(lowered, word) {
				return class.name
			}
		}
	}
	return "serene"
}

func inferWeather(storyText string) string {
	lowered := strings.ToLower(storyText)
	for _, class := range weatherKeywords {
		for _, word := range class.keywords {
			if strings.Contains(lowered, word) {
				return class.name
			}
		}
	}
	return "sunny"
}

func (s *Synthesizer) inferTimeOfDay(storyText string) string {
	lowered := strings.ToLower(storyText)
	switch {
	case containsAny(lowered, "dawn", "sunrise", "morning"):
		return "dawn"
	case containsAny(lowered, "noon", "bright"):
		return "day"
	case containsAny(lowered, "dusk", "evening", "sunset"):
		return "dusk"
	case containsAny(lowered, "night", "moon", "stars", "midnight"):
		return "night"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng.Intn(2) == 0 {
		return "day"
	}
	return "dusk"
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func selectPalette(mood, genre string) []string {
	if p, ok := moodPalettes[mood]; ok {
		return p
	}
	if p, ok := genrePalettes[genre]; ok {
		return p
	}
	return moodPalettes["serene"]
}

func deriveBiome(genre, location string) string {
	if location != "" {
		lowered := strings.ToLower(location)
		for _, lb := range locationBiomes {
			for _, token := range lb.tokens {
				if strings.Contains(lowered, token) {
					return lb.biome
				}
			}
		}
	}
	if b, ok := genreBiomes[genre]; ok {
		return b
	}
	return "mystic crossroads"
}

// storyExcerpt normalizes whitespace and truncates to the summary limit.
// The limit counts characters, not bytes, so multi-byte text is never cut
// mid-rune.
func storyExcerpt(text string) string {
	clean := strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	runes := []rune(clean)
	if len(runes) > summaryLimit {
		return string(runes[:summaryLimit]) + "..."
	}
	return clean
}

func buildPrompts(desc *model.SceneDescriptor, excerpt string, quest *model.Quest) *model.ScenePrompts {
	questLine := ""
	if quest != nil {
		questLine = fmt.Sprintf("The hero is advancing the quest '%s' which is about %s.",
			quest.Title, strings.ToLower(quest.Description))
	}

	names := make([]string, 0, len(desc.FocalSubjects))
	for _, subj := range desc.FocalSubjects {
		names = append(names, subj.Name)
	}
	focal := strings.Join(names, ", ")

	base := fmt.Sprintf(
		"Ultra-detailed, high fidelity %s illustration set in a %s at %s. "+
			"The weather is %s with lighting that feels %s. "+
			"Focus on %s with a %s and capture the mood as %s. "+
			"Camera style: %s. "+
			"Story context: %s. %s "+
			"Palette: %s. Bright, vibrant, high-exposure daylight with luminous rim lighting, reflective highlights, and crisp contrast. "+
			"Make the scene feel sunlit, saturated, and vivid with cinematic volumetric light rays and glowy atmospherics for a fast concept-art render.",
		desc.Genre, desc.Biome, desc.TimeOfDay,
		desc.Weather, desc.Lighting,
		focal, desc.HeroPose, desc.Mood,
		desc.Camera,
		excerpt, questLine,
		strings.Join(desc.Palette, ", "),
	)

	return &model.ScenePrompts{
		Base:     base,
		Negative: defaultNegativePrompt + ", oversaturated skin, text overlays, extra limbs, malformed hands",
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
