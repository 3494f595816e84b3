package model

// OAuthProfile is what an identity provider tells us about a user.
// The shape follows the passport profile the web client already knows:
// a stable provider id plus lists of emails and photos, primary first.
type OAuthProfile struct {
	ID          string         `json:"id"`
	Emails      []ProfileValue `json:"emails"`
	DisplayName string         `json:"displayName"`
	Photos      []ProfileValue `json:"photos"`
}

// ProfileValue is one entry of OAuthProfile.Emails or OAuthProfile.Photos.
type ProfileValue struct {
	Value string `json:"value"`
}

// PrimaryEmail returns the first non-empty email, or "".
func (p *OAuthProfile) PrimaryEmail() string {
	for _, e := range p.Emails {
		if e.Value != "" {
			return e.Value
		}
	}
	return ""
}

// PrimaryPhoto returns the first non-empty photo URL, or "".
func (p *OAuthProfile) PrimaryPhoto() string {
	for _, ph := range p.Photos {
		if ph.Value != "" {
			return ph.Value
		}
	}
	return ""
}
