package session

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/net/html"

	"github.com/verte-zerg/overtype/internal/overlay"
	"github.com/verte-zerg/overtype/internal/page"
)

// ContentHash fingerprints the host text under region, ignoring anything
// an overlay rendered there.
func ContentHash(doc *page.Document, region *html.Node) string {
	var text string
	doc.View(func(*html.Node) {
		text = page.TextContentExcluding(region, overlay.IsOwned)
	})
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
