package embeddings

import (
	"context"
	"strings"

	"github.com/sphere-social/sphere-matching/internal/model"
)

// The three builders render channel-specific text from a profile. Each channel
// embeds a different slice of the profile so retrieval can weigh who someone
// is, what they are into, and what they can offer independently.

// BuildProfileText renders the full-profile channel.
func BuildProfileText(p *model.Profile) string {
	var parts []string
	if p.Bio != "" {
		parts = append(parts, "About: "+p.Bio)
	}
	if p.LookingFor != "" {
		parts = append(parts, "Looking for: "+p.LookingFor)
	}
	if p.CanHelpWith != "" {
		parts = append(parts, "Can help with: "+p.CanHelpWith)
	}
	if len(p.Interests) > 0 {
		parts = append(parts, "Interests: "+strings.Join(p.Interests, ", "))
	}
	if len(p.Goals) > 0 {
		parts = append(parts, "Goals: "+strings.Join(p.Goals, ", "))
	}
	if len(parts) == 0 {
		return "New user"
	}
	return strings.Join(parts, " | ")
}

// BuildInterestsText renders the interests channel.
func BuildInterestsText(p *model.Profile) string {
	var parts []string
	if len(p.Interests) > 0 {
		parts = append(parts, "Interests: "+strings.Join(p.Interests, ", "))
	}
	if len(p.Goals) > 0 {
		parts = append(parts, "Goals: "+strings.Join(p.Goals, ", "))
	}
	if p.LookingFor != "" {
		parts = append(parts, "Looking for: "+p.LookingFor)
	}
	if len(parts) == 0 {
		return "General networking"
	}
	return strings.Join(parts, " | ")
}

// BuildExpertiseText renders the expertise channel. The bio is truncated since
// only professional background matters here.
func BuildExpertiseText(p *model.Profile) string {
	var parts []string
	if p.CanHelpWith != "" {
		parts = append(parts, "Can help with: "+p.CanHelpWith)
	}
	if p.Bio != "" {
		bio := p.Bio
		if len(bio) > 200 {
			bio = bio[:200]
		}
		parts = append(parts, "Background: "+bio)
	}
	if len(parts) == 0 {
		return "Open to connecting"
	}
	return strings.Join(parts, " | ")
}

// GenerateAll embeds all three channels of a profile.
func GenerateAll(ctx context.Context, provider EmbeddingProvider, p *model.Profile) (profile, interests, expertise []float32, err error) {
	if profile, err = provider.Embed(ctx, BuildProfileText(p)); err != nil {
		return nil, nil, nil, err
	}
	if interests, err = provider.Embed(ctx, BuildInterestsText(p)); err != nil {
		return nil, nil, nil, err
	}
	if expertise, err = provider.Embed(ctx, BuildExpertiseText(p)); err != nil {
		return nil, nil, nil, err
	}
	return profile, interests, expertise, nil
}
