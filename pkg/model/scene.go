package model

import "time"

// SceneStatus is the lifecycle state of a scene render.
// Transitions are monotonic per sceneId: pending -> (ready | offline).
type SceneStatus string

const (
	StatusPending SceneStatus = "pending"
	StatusReady   SceneStatus = "ready"
	StatusOffline SceneStatus = "offline"
)

// SceneSubject is a focal subject within a scene (the hero is always first).
type SceneSubject struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Description string `json:"description,omitempty"`
}

// SceneAssets holds the rendered image metadata. Populated only when the
// scene status is ready.
type SceneAssets struct {
	ImageURL     string `json:"imageUrl"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
}

// ScenePrompts carries the generation prompts. It is persisted but never
// crosses the service boundary.
type ScenePrompts struct {
	Base     string `json:"base"`
	Negative string `json:"negative"`
}

// SceneDescriptor is the structured output of the synthesizer and the unit
// of work for the render pipeline. The Prompts field is stripped before any
// response leaves the service.
type SceneDescriptor struct {
	SceneID           string         `json:"sceneId"`
	Title             string         `json:"title"`
	Subtitle          string         `json:"subtitle,omitempty"`
	Genre             string         `json:"genre"`
	LocationName      string         `json:"locationName"`
	Biome             string         `json:"biome"`
	Mood              string         `json:"mood"`
	Weather           string         `json:"weather"`
	Lighting          string         `json:"lighting"`
	TimeOfDay         string         `json:"timeOfDay"`
	Palette           []string       `json:"palette"`
	HeroPose          string         `json:"heroPose"`
	Camera            string         `json:"camera"`
	Summary           string         `json:"summary"`
	FocalSubjects     []SceneSubject `json:"focalSubjects"`
	SupportingDetails []string       `json:"supportingDetails"`
	Prompts           *ScenePrompts  `json:"-"`
	Status            SceneStatus    `json:"status"`
	Assets            *SceneAssets   `json:"assets,omitempty"`
	CreatedAt         string         `json:"createdAt"`
	PreGeneratedKey   string         `json:"preGeneratedKey,omitempty"`
}

// Player describes the hero at render time. Extra stats are carried opaquely.
type Player struct {
	Name  string         `json:"name"`
	Class string         `json:"class"`
	Level int            `json:"level"`
	Stats map[string]int `json:"stats,omitempty"`
}

// Quest is the currently active quest, if any.
type Quest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// GameState carries game bookkeeping relevant to scene persistence.
type GameState struct {
	TurnCount int `json:"turnCount"`
}

// RenderRequest is the input to a scene render. StoryText is required.
type RenderRequest struct {
	Player          Player           `json:"player"`
	Genre           string           `json:"genre"`
	StoryText       string           `json:"storyText"`
	PreviousEvents  []map[string]any `json:"previousEvents,omitempty"`
	ActiveQuest     *Quest           `json:"activeQuest,omitempty"`
	CurrentLocation string           `json:"currentLocation,omitempty"`
	GameState       *GameState       `json:"gameState,omitempty"`
	PreGeneratedKey string           `json:"preGeneratedKey,omitempty"`
}

// SceneRecord is the persisted form of a scene: the public descriptor plus
// bookkeeping and the original request context for rerender.
type SceneRecord struct {
	SceneID         string
	PlayerID        string
	Turn            int
	Genre           string
	Status          SceneStatus
	Scene           *SceneDescriptor
	Prompts         *ScenePrompts
	Assets          *SceneAssets
	Context         *RenderRequest
	PreGeneratedKey string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
