package intent

// ThemeAxis is the fixed ordering of themes used for theme vectors, so
// every organ compares seeds along the same axes.
var ThemeAxis = []string{
	"creativity", "connection", "health", "growth", "purpose",
	"abundance", "nature", "love", "freedom", "wisdom",
}

var positiveWords = wordSet(
	"love", "joy", "happy", "peace", "kind", "beautiful", "grow", "create",
	"inspire", "heal", "hope", "dream", "light", "warm", "gentle", "bloom",
	"flourish", "thrive", "abundance", "harmony", "grateful", "wonder",
	"connect", "share", "give", "nurture", "celebrate", "delight", "radiant",
)

var negativeWords = wordSet(
	"fear", "pain", "alone", "lost", "hurt", "angry", "sad", "broken",
	"struggle", "dark", "cold", "empty", "anxious", "worried", "tired",
	"stuck", "confused", "overwhelmed", "lonely", "helpless", "frustrated",
)

var highArousalWords = wordSet(
	"urgent", "now", "immediately", "passionate", "excited", "desperate",
	"burning", "intense", "wild", "explosive", "rush", "fire", "storm",
)

var lowArousalWords = wordSet(
	"calm", "quiet", "gentle", "slow", "peaceful", "still", "rest",
	"breathe", "soft", "ease", "drift", "settle", "serene",
)

var themeLexicon = map[string]map[string]bool{
	"creativity": wordSet("create", "art", "design", "build", "imagine", "invent", "write", "compose", "craft", "paint"),
	"connection": wordSet("connect", "together", "community", "friend", "family", "belong", "share", "relate", "bond"),
	"health":     wordSet("health", "heal", "body", "mind", "wellness", "energy", "strength", "vitality", "exercise", "rest"),
	"growth":     wordSet("grow", "learn", "evolve", "improve", "develop", "expand", "progress", "advance", "transform"),
	"purpose":    wordSet("purpose", "meaning", "mission", "calling", "destiny", "why", "matter", "impact", "legacy"),
	"abundance":  wordSet("abundance", "wealth", "prosperity", "money", "rich", "earn", "income", "financial", "success"),
	"nature":     wordSet("nature", "earth", "garden", "tree", "water", "sky", "animal", "forest", "ocean", "mountain"),
	"love":       wordSet("love", "heart", "romance", "partner", "relationship", "intimacy", "affection", "devotion", "care"),
	"freedom":    wordSet("free", "freedom", "liberate", "escape", "independence", "autonomy", "choice", "open", "release"),
	"wisdom":     wordSet("wisdom", "knowledge", "understand", "truth", "insight", "clarity", "awareness", "enlighten"),
}

var ethicalMarkers = map[string]map[string]bool{
	"harm":           wordSet("hurt", "destroy", "damage", "kill", "attack", "weapon", "violence", "abuse"),
	"fairness":       wordSet("fair", "equal", "justice", "rights", "equity", "balance", "impartial"),
	"sustainability": wordSet("sustain", "renew", "recycle", "conserve", "preserve", "green", "eco"),
	"consent":        wordSet("consent", "agree", "willing", "choose", "voluntary", "permission"),
	"kindness":       wordSet("kind", "gentle", "compassion", "empathy", "care", "tender", "mercy"),
	"truthfulness":   wordSet("truth", "honest", "transparent", "authentic", "genuine", "sincere"),
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// ThemeVector projects a theme list onto the fixed theme axis.
func ThemeVector(themes []string) []float64 {
	present := make(map[string]bool, len(themes))
	for _, t := range themes {
		present[t] = true
	}
	vec := make([]float64, len(ThemeAxis))
	for i, axis := range ThemeAxis {
		if present[axis] {
			vec[i] = 1
		}
	}
	return vec
}
