package delivery

import "azkarbot/internal/transport"

// Control is a named logical UI control mapped to an ordered sequence of
// locator strategies. The order encodes "current markup first, older
// markup as fallback" and is versionable independently of the send logic.
type Control struct {
	Name     string
	Locators []transport.Locator
}

// Controls is the static locator table for the WhatsApp Web UI.
type Controls struct {
	LoggedInMarker Control
	AttachButton   Control
	FileInput      Control
	CaptionField   Control
	SendButton     Control
}

// DefaultControls returns the locator table as of the current WhatsApp Web
// markup, with fallbacks for the previous generations still seen in the
// wild.
func DefaultControls() Controls {
	return Controls{
		LoggedInMarker: Control{
			Name: "logged-in marker",
			Locators: []transport.Locator{
				transport.CSS("#side"),
			},
		},
		AttachButton: Control{
			Name: "attachment button",
			Locators: []transport.Locator{
				transport.XPath(`//button[@title="Attach"]`),
				transport.XPath(`//button[@data-tab="10"]`),
				transport.XPath(`//span[@data-icon="attach-menu-plus"]/parent::button`),
				transport.XPath(`//span[@data-icon="plus"]/parent::button`),
				transport.XPath(`//div[@title="Attach"]`),
				transport.XPath(`//div[@aria-label="Attach"]`),
				transport.XPath(`//span[@data-icon="clip"]`),
			},
		},
		FileInput: Control{
			Name: "file input",
			Locators: []transport.Locator{
				transport.XPath(`//input[@accept="image/*,video/mp4,video/3gpp,video/quicktime"]`),
				transport.XPath(`//input[@type="file"]`),
			},
		},
		CaptionField: Control{
			Name: "caption field",
			Locators: []transport.Locator{
				transport.XPath(`//div[@contenteditable="true"][@data-tab="10"]`),
				transport.XPath(`//div[contains(@class,"copyable-text selectable-text")][@contenteditable="true"]`),
				transport.XPath(`//div[@role="textbox"]`),
			},
		},
		SendButton: Control{
			Name: "send button",
			Locators: []transport.Locator{
				transport.XPath(`//span[@data-icon="send"]`),
				transport.XPath(`//button[@aria-label="Send"]`),
				transport.XPath(`//div[@role="button" and @aria-label="Send"]`),
				transport.XPath(`//span[@data-testid="send"]`),
			},
		},
	}
}
