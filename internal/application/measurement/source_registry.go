package measurement

import (
	"fmt"
	"slices"
	"strings"

	"github.com/medview/backend/internal/domain/measurement"
	"go.uber.org/zap"
)

// CreateSource registers a producer of annotations. Registering the same
// (name, version) pair again returns the Source created the first time.
func (s *Service) CreateSource(name, version string) (*measurement.Source, error) {
	key := sourceKey(name, version)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sourcesByKey[key]; ok {
		return existing, nil
	}

	source, err := measurement.NewSource(key.Name, key.Version, s)
	if err != nil {
		return nil, err
	}
	s.sources = append(s.sources, source)
	s.sourcesByKey[key] = source

	s.logger.Info("Measurement source registered",
		zap.String("source_id", source.ID),
		zap.String("source", source.String()))
	return source, nil
}

// GetSource looks up a source by name and version. Surrounding whitespace is
// ignored as it is by CreateSource.
func (s *Service) GetSource(name, version string) (*measurement.Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := s.sourcesByKey[sourceKey(name, version)]
	return source, ok
}

func sourceKey(name, version string) measurement.SourceKey {
	return measurement.SourceKey{Name: strings.TrimSpace(name), Version: strings.TrimSpace(version)}
}

// GetSourceByID looks up a source by its id
func (s *Service) GetSourceByID(id string) (*measurement.Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, source := range s.sources {
		if source.ID == id {
			return source, true
		}
	}
	return nil, false
}

// Sources returns the registered sources in registration order
func (s *Service) Sources() []*measurement.Source {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.sources)
}

// isValid reports whether source is the exact handle issued by this service.
// Must be called with s.mu held.
func (s *Service) isValid(source *measurement.Source) bool {
	if source == nil {
		return false
	}
	return s.sourcesByKey[source.Key()] == source
}

// checkSource must be called with s.mu held
func (s *Service) checkSource(source *measurement.Source) error {
	if !s.isValid(source) {
		return fmt.Errorf("%w: %s", measurement.ErrInvalidSource, source)
	}
	return nil
}
