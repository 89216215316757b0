package main

import (
	"fmt"
	"strconv"
	"strings"

	"sceneforge/internal/production"
	"sceneforge/internal/textutil"
)

// resolveScene finds a scene by 1-based number or by id.
func resolveScene(p *production.Production, arg string) (production.Scene, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return production.Scene{}, fmt.Errorf("scene number or id is required")
	}
	if number, err := strconv.Atoi(arg); err == nil {
		if number < 1 || number > len(p.Scenes) {
			return production.Scene{}, fmt.Errorf("scene %d out of range (production has %d scenes)", number, len(p.Scenes))
		}
		return p.Scenes[number-1], nil
	}
	scene, ok := p.Scene(arg)
	if !ok {
		return production.Scene{}, fmt.Errorf("scene %q not found", arg)
	}
	return scene, nil
}

func parseSceneNumber(arg string, count int) (int, error) {
	number, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, fmt.Errorf("invalid scene number %q", arg)
	}
	if number < 1 || number > count {
		return 0, fmt.Errorf("scene %d out of range (production has %d scenes)", number, count)
	}
	return number, nil
}

func formatSeconds(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
}

func displayTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Untitled production"
	}
	return title
}

func truncate(value string, limit int) string {
	return textutil.Truncate(textutil.CollapseSpace(value), limit)
}
