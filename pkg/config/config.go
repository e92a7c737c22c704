// Package config manages named profiles of device and backend settings
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"line-terminal/pkg/serial"
	"line-terminal/pkg/tty"
)

// Backend names accepted by Profile.Backend
const (
	BackendScreen = "screen"
	BackendStdio  = "stdio"
	BackendSerial = "serial"
)

// Backends lists the valid backend names
var Backends = []string{BackendScreen, BackendStdio, BackendSerial}

// ProfileManager interface defines the contract for profile operations
type ProfileManager interface {
	Save(profile Profile) error
	Load(name string) (Profile, error)
	List() ([]Profile, error)
	Delete(name string) error
	Exists(name string) bool
	Get(name, path string) (string, error)
	Set(name, path, value string) error
}

// Profile is a named set of settings for the run command
type Profile struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Backend     string              `json:"backend"`
	Device      tty.Config          `json:"device"`
	Serial      serial.SerialConfig `json:"serial"`
	CreatedAt   time.Time           `json:"created_at"`
	LastUsedAt  time.Time           `json:"last_used_at"`
}

// DefaultProfile returns a profile with default settings for the screen backend
func DefaultProfile(name string) Profile {
	return Profile{
		Name:    name,
		Backend: BackendScreen,
		Device:  tty.DefaultConfig(),
		Serial:  serial.DefaultConfig(),
	}
}

// Validate checks if the profile is valid. Serial settings are only checked
// for the serial backend.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	if !slices.Contains(Backends, p.Backend) {
		return fmt.Errorf("invalid backend: %s (want one of %s)", p.Backend, strings.Join(Backends, ", "))
	}

	if err := p.Device.Validate(); err != nil {
		return fmt.Errorf("invalid device config: %w", err)
	}

	if p.Backend == BackendSerial {
		if err := p.Serial.Validate(); err != nil {
			return fmt.Errorf("invalid serial config: %w", err)
		}
	}

	return nil
}

// ProfileStorage represents the storage format for profiles
type ProfileStorage struct {
	Profiles map[string]Profile `json:"profiles"`
	Version  string             `json:"version"`
}

// FileProfileManager implements ProfileManager using a JSON file
type FileProfileManager struct {
	configDir  string
	configFile string
	now        func() time.Time
}

// DefaultDir returns ~/.line-terminal
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".line-terminal"), nil
}

// NewFileProfileManager creates a profile manager storing configs.json in configDir
func NewFileProfileManager(configDir string) *FileProfileManager {
	return &FileProfileManager{
		configDir:  configDir,
		configFile: "configs.json",
		now:        time.Now,
	}
}

// Path returns the full path to the profile file
func (m *FileProfileManager) Path() string {
	return filepath.Join(m.configDir, m.configFile)
}

// Save stores a profile, keeping the creation time and description of an
// existing profile with the same name
func (m *FileProfileManager) Save(profile Profile) error {
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	storage, err := m.loadStorage()
	if err != nil {
		return fmt.Errorf("failed to load existing profiles: %w", err)
	}

	now := m.now()
	profile.CreatedAt = now
	profile.LastUsedAt = now
	if existing, exists := storage.Profiles[profile.Name]; exists {
		profile.CreatedAt = existing.CreatedAt
		if profile.Description == "" {
			profile.Description = existing.Description
		}
	}

	storage.Profiles[profile.Name] = profile

	if err := m.saveStorage(storage); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Load returns a profile by name and records its use
func (m *FileProfileManager) Load(name string) (Profile, error) {
	if name == "" {
		return Profile{}, fmt.Errorf("profile name cannot be empty")
	}

	storage, err := m.loadStorage()
	if err != nil {
		return Profile{}, fmt.Errorf("failed to load profiles: %w", err)
	}

	profile, exists := storage.Profiles[name]
	if !exists {
		return Profile{}, fmt.Errorf("profile '%s' not found", name)
	}

	profile.LastUsedAt = m.now()
	storage.Profiles[name] = profile

	// last-used bookkeeping is not worth failing the load for
	m.saveStorage(storage)

	return profile, nil
}

// List returns all profiles sorted by name
func (m *FileProfileManager) List() ([]Profile, error) {
	storage, err := m.loadStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	profiles := make([]Profile, 0, len(storage.Profiles))
	for _, profile := range storage.Profiles {
		profiles = append(profiles, profile)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})

	return profiles, nil
}

// Delete removes a profile by name
func (m *FileProfileManager) Delete(name string) error {
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	storage, err := m.loadStorage()
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}

	if _, exists := storage.Profiles[name]; !exists {
		return fmt.Errorf("profile '%s' not found", name)
	}

	delete(storage.Profiles, name)

	if err := m.saveStorage(storage); err != nil {
		return fmt.Errorf("failed to save profiles after deletion: %w", err)
	}
	return nil
}

// Exists checks if a profile with the given name exists
func (m *FileProfileManager) Exists(name string) bool {
	if name == "" {
		return false
	}

	storage, err := m.loadStorage()
	if err != nil {
		return false
	}

	_, exists := storage.Profiles[name]
	return exists
}

// Get returns one setting of a profile addressed by a dotted path such as
// "device.line_capacity". Objects are returned as JSON.
func (m *FileProfileManager) Get(name, path string) (string, error) {
	profile, err := m.lookup(name)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("failed to marshal profile: %w", err)
	}

	result := gjson.GetBytes(data, path)
	if !result.Exists() {
		return "", fmt.Errorf("unknown setting '%s'", path)
	}
	return result.String(), nil
}

// Set changes one existing setting of a profile. A value that parses as
// JSON is stored as such; anything else is stored as a string.
func (m *FileProfileManager) Set(name, path, value string) error {
	if path == "name" || strings.HasPrefix(path, "created_at") {
		return fmt.Errorf("setting '%s' is read-only", path)
	}

	storage, err := m.loadStorage()
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	profile, exists := storage.Profiles[name]
	if !exists {
		return fmt.Errorf("profile '%s' not found", name)
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if !gjson.GetBytes(data, path).Exists() {
		return fmt.Errorf("unknown setting '%s'", path)
	}

	if gjson.Valid(value) {
		data, err = sjson.SetRawBytes(data, path, []byte(value))
	} else {
		data, err = sjson.SetBytes(data, path, value)
	}
	if err != nil {
		return fmt.Errorf("failed to set '%s': %w", path, err)
	}

	var updated Profile
	if err := json.Unmarshal(data, &updated); err != nil {
		return fmt.Errorf("invalid value for '%s': %w", path, err)
	}
	if err := updated.Validate(); err != nil {
		return fmt.Errorf("invalid value for '%s': %w", path, err)
	}

	storage.Profiles[name] = updated
	if err := m.saveStorage(storage); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (m *FileProfileManager) lookup(name string) (Profile, error) {
	storage, err := m.loadStorage()
	if err != nil {
		return Profile{}, fmt.Errorf("failed to load profiles: %w", err)
	}
	profile, exists := storage.Profiles[name]
	if !exists {
		return Profile{}, fmt.Errorf("profile '%s' not found", name)
	}
	return profile, nil
}

// loadStorage loads the profile storage from file
func (m *FileProfileManager) loadStorage() (ProfileStorage, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return ProfileStorage{
				Profiles: make(map[string]Profile),
				Version:  "1.0",
			}, nil
		}
		return ProfileStorage{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var storage ProfileStorage
	if err := json.Unmarshal(data, &storage); err != nil {
		return ProfileStorage{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	if storage.Profiles == nil {
		storage.Profiles = make(map[string]Profile)
	}

	return storage, nil
}

// saveStorage writes the profile storage through a temporary file
func (m *FileProfileManager) saveStorage(storage ProfileStorage) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(storage, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config data: %w", err)
	}

	configPath := m.Path()
	tempPath := configPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary config file: %w", err)
	}

	return nil
}
