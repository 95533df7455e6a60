package main

import (
	"fmt"
	"strings"
	"time"
)

type stepKind string

const (
	stepText      stepKind = "text"
	stepVoice     stepKind = "voice"
	stepCancel    stepKind = "cancel"
	stepRecommend stepKind = "recommend"
	stepWait      stepKind = "wait"
)

// step 是脚本中的一个动作
type step struct {
	kind     stepKind
	text     string
	duration time.Duration
}

// parseScript 解析形如 "text:你好;wait:3s;voice:2s;recommend" 的脚本
func parseScript(raw string) ([]step, error) {
	var steps []step
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kind, arg, _ := strings.Cut(part, ":")
		s := step{kind: stepKind(strings.TrimSpace(kind))}
		switch s.kind {
		case stepText:
			s.text = arg
		case stepRecommend:
		case stepVoice, stepCancel, stepWait:
			d, err := time.ParseDuration(strings.TrimSpace(arg))
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", part, err)
			}
			if d < 0 {
				return nil, fmt.Errorf("step %q: negative duration", part)
			}
			s.duration = d
		default:
			return nil, fmt.Errorf("unknown step %q", part)
		}
		steps = append(steps, s)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("script is empty")
	}
	return steps, nil
}
