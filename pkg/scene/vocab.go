package scene

// Classification vocabularies. Immutable, process-lifetime data: the keyword
// lists are scanned in order, first match wins.

type keywordClass struct {
	name     string
	keywords []string
}

var moodKeywords = []keywordClass{
	{"intense", []string{"battle", "fight", "fire", "attack", "blood", "storm"}},
	{"mystic", []string{"arcane", "mystic", "ancient", "temple", "spirit", "runic"}},
	{"serene", []string{"calm", "river", "garden", "peaceful", "rest", "glow"}},
	{"ominous", []string{"shadow", "dark", "cursed", "ominous", "fog", "haunted"}},
	{"victorious", []string{"victory", "treasure", "celebration", "light", "reward"}},
}

var weatherKeywords = []keywordClass{
	{"storm", []string{"storm", "rain", "thunder", "lightning"}},
	{"snow", []string{"snow", "ice", "frost"}},
	{"fog", []string{"fog", "mist", "haze"}},
	{"sunny", []string{"sun", "bright", "clear"}},
	{"ember", []string{"lava", "ember", "ash"}},
}

var moodPalettes = map[string][]string{
	"intense":    {"#ff7847", "#ffb347", "#1f1f1f", "#d13438", "#f0c808"},
	"mystic":     {"#4b3b8f", "#6a4c93", "#a27cfe", "#1b1f3b", "#4ad9d9"},
	"serene":     {"#72ddf7", "#a0f1db", "#fdfcdc", "#f4d35e", "#ee964b"},
	"ominous":    {"#0d0d0d", "#2f2f2f", "#5d1451", "#1a535c", "#4d194d"},
	"victorious": {"#ffd166", "#06d6a0", "#118ab2", "#073b4c", "#ffe29a"},
}

var genrePalettes = map[string][]string{
	"Mystery":  {"#1b1b2f", "#16213e", "#0f3460", "#53354a", "#e84545"},
	"Sci-Fi":   {"#0f2027", "#203a43", "#2c5364", "#00b4d8", "#90e0ef"},
	"Mythical": {"#331832", "#c84b31", "#f3ecc8", "#daa49a", "#c1a57b"},
}

var genreBiomes = map[string]string{
	"Fantasy":  "mossy dungeon hall",
	"Mystery":  "fog-laced alley",
	"Sci-Fi":   "orbital observation deck",
	"Mythical": "celestial amphitheater",
}

var locationBiomes = []struct {
	tokens []string
	biome  string
}{
	{[]string{"forest", "grove", "woods"}, "enchanted forest"},
	{[]string{"desert", "dune", "waste"}, "sun-scorched desert"},
	{[]string{"city", "village", "town"}, "ancient settlement"},
	{[]string{"temple", "ruin"}, "sacred ruins"},
}

var heroPoses = []string{
	"blade poised mid-swing",
	"arcane focus glowing between hands",
	"bow drawn with shimmering arrow",
	"kneeling beside mysterious artifact",
	"cautious stance with torch raised",
}

var cameraStyles = []string{
	"wide cinematic shot",
	"hero-focused medium shot",
	"dynamic low-angle composition",
	"sweeping aerial view",
	"over-the-shoulder perspective",
}

const defaultNegativePrompt = "lowres, bad anatomy, text artifacts, watermarks, distorted hands, extra limbs"
