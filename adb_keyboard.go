package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	adbKeyboardPackage = "com.android.adbkeyboard"
	adbKeyboardIME     = "com.android.adbkeyboard/.AdbIME"
)

// ErrKeyboardMissing means Unicode text cannot be typed on this device
var ErrKeyboardMissing = errors.New("ADBKeyboard is not installed (needed for non-ASCII text)")

// ADBKeyboard types text through the ADBKeyboard IME when it is installed,
// falling back to `input text` for ASCII
type ADBKeyboard struct {
	sh   shellRunner
	wait func(ctx context.Context, d time.Duration) error
}

func NewADBKeyboard(sh shellRunner) *ADBKeyboard {
	return &ADBKeyboard{sh: sh, wait: sleepCtx}
}

// Installed checks if ADBKeyboard is installed on the device
func (k *ADBKeyboard) Installed(ctx context.Context) bool {
	out, err := k.sh.Shell(ctx, "pm list packages "+adbKeyboardPackage)
	return err == nil && strings.Contains(out, "package:"+adbKeyboardPackage)
}

func (k *ADBKeyboard) currentIME(ctx context.Context) string {
	out, err := k.sh.Shell(ctx, "settings get secure default_input_method")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// activate temporarily switches the active IME to ADBKeyboard and returns
// the previous one
func (k *ADBKeyboard) activate(ctx context.Context) (string, error) {
	previous := k.currentIME(ctx)
	if previous == adbKeyboardIME {
		return previous, nil
	}

	k.sh.Shell(ctx, "ime enable "+adbKeyboardIME)
	if _, err := k.sh.Shell(ctx, "ime set "+adbKeyboardIME); err != nil {
		return previous, err
	}
	LogDebug("adb_keyboard").Msg("ADBKeyboard temporarily activated")

	// Wait for IME service to bind to the input field
	return previous, k.wait(ctx, 800*time.Millisecond)
}

// restore switches back to the previous IME
func (k *ADBKeyboard) restore(ctx context.Context, previous string) {
	if previous == "" || previous == adbKeyboardIME {
		return
	}
	if _, err := k.sh.Shell(ctx, "ime set "+previous); err != nil {
		LogDebug("adb_keyboard").Err(err).Msg("Failed to restore previous IME")
	}
}

// broadcast runs an ADBKeyboard intent with the IME active
func (k *ADBKeyboard) broadcast(ctx context.Context, intent string) error {
	if !k.Installed(ctx) {
		return ErrKeyboardMissing
	}
	previous, err := k.activate(ctx)
	defer k.restore(context.WithoutCancel(ctx), previous)
	if err != nil {
		return fmt.Errorf("activate ADBKeyboard: %w", err)
	}

	out, err := k.sh.Shell(ctx, "am broadcast "+intent)
	if err != nil {
		return fmt.Errorf("ADBKeyboard broadcast failed: %w", err)
	}
	if !containsAny(out, "result=0", "result=-1") {
		LogDebug("adb_keyboard").Str("output", out).Msg("Unexpected broadcast result")
	}
	return nil
}

// Input is the unified text entry point. ASCII goes through `input text`,
// anything else needs ADBKeyboard's base64 broadcast.
func (k *ADBKeyboard) Input(ctx context.Context, text string) error {
	if !containsNonASCII(text) {
		_, err := k.sh.Shell(ctx, "input text "+escapeForAdbInput(text))
		return err
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	return k.broadcast(ctx, "-a ADB_INPUT_B64 --es msg "+encoded)
}

// Clear empties the focused field. Without ADBKeyboard it is a no-op and
// reports ErrKeyboardMissing.
func (k *ADBKeyboard) Clear(ctx context.Context) error {
	return k.broadcast(ctx, "-a ADB_CLEAR_TEXT")
}

func containsNonASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// escapeForAdbInput escapes ASCII text for "adb shell input text"
func escapeForAdbInput(text string) string {
	// input text uses %s for spaces
	result := strings.ReplaceAll(text, " ", "%s")

	shellSpecials := []string{
		"\\", "'", "\"", "`", "$",
		"(", ")", "{", "}", "[", "]",
		"&", "|", ";", "<", ">",
		"#", "!", "~", "*", "?",
	}
	for _, ch := range shellSpecials {
		result = strings.ReplaceAll(result, ch, "\\"+ch)
	}
	return result
}
