package store

import (
	"encoding/json"
	"fmt"

	"sceneforge/internal/production"
)

// payload is the serialized body stored for each production. Identity and
// timestamps live in their own columns.
type payload struct {
	Title    string              `json:"title"`
	Step     production.Step     `json:"step"`
	Scenes   []production.Scene  `json:"scenes"`
	Settings production.Settings `json:"settings"`
}

func encodePayload(p *production.Production) ([]byte, error) {
	body := payload{Title: p.Title, Step: p.Step, Scenes: p.Scenes, Settings: p.Settings}
	if body.Scenes == nil {
		body.Scenes = []production.Scene{}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode production: %w", err)
	}
	return data, nil
}

func decodePayload(data []byte, p *production.Production) error {
	var body payload
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("decode production: %w", err)
	}
	p.Title = body.Title
	p.Step = body.Step
	p.Scenes = body.Scenes
	p.Settings = body.Settings
	if p.Scenes == nil {
		p.Scenes = []production.Scene{}
	}
	return nil
}
