package domain

type Quote struct {
	ID       string `json:"id"`
	Text     string `json:"quote"`
	Author   string `json:"author"`
	ImageURL string `json:"imageUrl"`
}

// FallbackImages are served whenever image synthesis fails.
var FallbackImages = []string{
	"https://images.unsplash.com/photo-1507502707541-f369a3b18502?q=80&w=1080&auto=format&fit=crop",
	"https://images.unsplash.com/photo-1516466723877-e4ec1d736c8a?q=80&w=1080&auto=format&fit=crop",
	"https://images.unsplash.com/photo-1470770841072-f978cf4d019e?q=80&w=1080&auto=format&fit=crop",
	"https://images.unsplash.com/photo-1464822759023-fed622ff2c3b?q=80&w=1080&auto=format&fit=crop",
}

func IsFallbackImage(url string) bool {
	for _, f := range FallbackImages {
		if f == url {
			return true
		}
	}
	return false
}
