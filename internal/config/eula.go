package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const eulaURL = "https://aka.ms/MinecraftEULA"

// EULAStatus is the result of checking the EULA file.
type EULAStatus struct {
	Path     string
	Created  bool
	Accepted bool
}

// CheckEULA reads the EULA file at path, creating it with eula=false when
// it does not exist. The file is accepted only if its eula key is "true",
// ignoring case.
func CheckEULA(path string) (EULAStatus, error) {
	status := EULAStatus{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return status, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := writeEULA(path, false); err != nil {
			return status, err
		}
		log.Info().Str("path", path).Msg("EULA file created")
		status.Created = true
		return status, nil
	}

	props := parseProperties(string(data))
	status.Accepted = strings.EqualFold(props["eula"], "true")
	return status, nil
}

// AcceptEULA rewrites the EULA file with eula=true.
func AcceptEULA(path string) error {
	if err := writeEULA(path, true); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("EULA accepted")
	return nil
}

// PromptEULA asks on in whether the operator accepts the EULA and records
// the answer. It returns true when accepted.
func PromptEULA(in io.Reader, path string) (bool, error) {
	reader := bufio.NewReader(in)

	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║          Voxelgate - EULA Required           ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Printf("  You must agree to the Minecraft EULA (%s)\n", eulaURL)
	fmt.Printf("  before this server can run. The answer is saved to %s.\n\n", path)

	if !promptBool(reader, "Do you accept the EULA? (yes/no)", false) {
		return false, nil
	}
	if err := AcceptEULA(path); err != nil {
		return false, err
	}
	return true, nil
}

func writeEULA(path string, accepted bool) error {
	var b strings.Builder
	b.WriteString("# Minecraft EULA\n")
	fmt.Fprintf(&b, "# By changing the setting below to TRUE you are indicating your agreement to our EULA (%s).\n", eulaURL)
	fmt.Fprintf(&b, "# %s\n", time.Now().Format("Mon Jan 02 15:04:05 MST 2006"))
	fmt.Fprintf(&b, "eula=%t\n", accepted)

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// parseProperties parses key=value lines, skipping blanks and # comments.
func parseProperties(content string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			key, value, ok = strings.Cut(line, ":")
		}
		if !ok {
			continue
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return props
}

func promptBool(reader *bufio.Reader, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Printf("  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
