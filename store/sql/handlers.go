package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func messagePartHandlers() repository.ModelHandlers[*messagePartRecord] {
	return repository.ModelHandlers[*messagePartRecord]{
		NewRecord: func() *messagePartRecord {
			return &messagePartRecord{}
		},
		GetID: func(record *messagePartRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *messagePartRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "message_id"
		},
		GetIdentifierValue: func(record *messagePartRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.MessageID)
		},
	}
}

func deliveredFragmentHandlers() repository.ModelHandlers[*deliveredFragmentRecord] {
	return repository.ModelHandlers[*deliveredFragmentRecord]{
		NewRecord: func() *deliveredFragmentRecord {
			return &deliveredFragmentRecord{}
		},
		GetID: func(record *deliveredFragmentRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *deliveredFragmentRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "message_id"
		},
		GetIdentifierValue: func(record *deliveredFragmentRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.MessageID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
