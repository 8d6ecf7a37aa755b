package worker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/andarbahar/go/internal/table/outbox"
)

func TestSubject(t *testing.T) {
	ev := outbox.Event{ID: uuid.New(), TableID: "table-1", EventType: "card_dealt"}
	assert.Equal(t, "table.events.table-1.card_dealt", Subject(DefaultJetStreamConfig().SubjectPrefix, ev))
}

func TestStreamConfig(t *testing.T) {
	p := &JetStreamPublisher{config: DefaultJetStreamConfig()}
	sc := p.streamConfig()
	assert.Equal(t, "TABLE_EVENTS", sc.Name)
	assert.Equal(t, []string{"table.events.>"}, sc.Subjects)
	assert.True(t, isStreamConfigEqual(sc, p.streamConfig()))

	changed := sc
	changed.Replicas = 3
	assert.False(t, isStreamConfigEqual(sc, changed))
}
