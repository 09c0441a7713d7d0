// Package gallery binds a page of folder entries to images, keeps each
// visitor's gallery session, and runs the classifier over the page.
package gallery

import (
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/Brownie44l1/trapcam/internal/pager"
)

// Image is one slot of the current page. Src is empty when ID is past the end
// of the listing.
type Image struct {
	ID     int
	Name   string
	Src    string
	Pixels image.Image
}

// Bind maps every index of w to an Image record.
func Bind(w pager.Window, names []string, baseURL, folder string) [pager.Size]Image {
	var images [pager.Size]Image
	for i, idx := range w {
		images[i] = Image{ID: idx}
		if !pager.InRange(idx, len(names)) {
			continue
		}
		images[i].Name = names[idx]
		images[i].Src = ImageURL(baseURL, folder, names[idx])
	}
	return images
}

// ImageURL is <base>/images/<folder>/<name>.
func ImageURL(baseURL, folder, name string) string {
	return fmt.Sprintf("%s/images/%s/%s", strings.TrimRight(baseURL, "/"),
		url.PathEscape(folder), url.PathEscape(name))
}
