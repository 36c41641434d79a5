package console_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonydevcode/mousetester/internal/console"
)

// 中断チャネルが閉じられたら残り時間を待たずに戻る
func TestCountdownInterrupted(t *testing.T) {
	interrupt := make(chan struct{})
	close(interrupt)

	start := time.Now()
	console.Countdown(5, interrupt)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCountdownZeroSeconds(t *testing.T) {
	start := time.Now()
	console.Countdown(0, nil)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
