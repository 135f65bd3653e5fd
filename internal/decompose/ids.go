package decompose

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// idScheme is the opaque-URI prefix for all corpusd element identifiers.
const idScheme = "corpusd://"

// contentHash derives a short stable digest from the given parts.
func contentHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// foldLabel normalises an entity label for find-or-create matching.
func foldLabel(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

// labelSlug renders a folded label into an id-safe path segment.
func labelSlug(folded string) string {
	var b strings.Builder
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('-')
		default:
			// Non-ASCII labels keep a digest-stable form.
			b.WriteByte('x')
		}
	}
	return b.String()
}

func entityID(corpus, label string) string {
	folded := foldLabel(label)
	return idScheme + corpus + "/entity/" + labelSlug(folded) + "-" + contentHash(folded)
}

func unitID(corpus, source, text string) string {
	return idScheme + corpus + "/unit/" + contentHash(source, text)
}

func relationshipID(corpus, srcID, dstID, description string) string {
	return idScheme + corpus + "/relationship/" + contentHash(srcID, dstID, description)
}

func textElementID(corpus, source, content string) string {
	return idScheme + corpus + "/text/" + contentHash(source, content)
}

func attributeID(corpus, entityID, content string) string {
	return idScheme + corpus + "/attribute/" + contentHash(entityID, content)
}

func communityID(corpus string, members []string) string {
	return idScheme + corpus + "/community/" + contentHash(members...)
}

func communityElementID(corpus, community, title string) string {
	return idScheme + corpus + "/community-element/" + contentHash(community, title)
}

func overviewID(corpus, communityElement string) string {
	return idScheme + corpus + "/overview/" + contentHash(communityElement)
}
