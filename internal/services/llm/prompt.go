package llm

const imageEnhancePrompt = `You rewrite scene descriptions into prompts for a still-image generator.
Keep every subject, setting, and named reference from the input. Add concrete
lighting, lens, and composition detail. Do not invent dialogue or text overlays.
Respond with JSON only: {"prompt": "<rewritten prompt>", "notes": "<one short sentence>"}`

const videoEnhancePrompt = `You rewrite motion directions for an image-to-video model.
The first frame already exists; describe only camera movement, subject motion,
and pacing that fits within a few seconds. Avoid scene changes and cuts.
Respond with JSON only: {"prompt": "<rewritten prompt>", "notes": "<one short sentence>"}`

func defaultSystemPrompt(kind string) string {
	if kind == "video" {
		return videoEnhancePrompt
	}
	return imageEnhancePrompt
}
