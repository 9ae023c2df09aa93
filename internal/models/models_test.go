package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlu-memory-assistant/internal/nlu"
)

// ==========================
// Conversation
// ==========================

func TestNewMessage(t *testing.T) {
	m := NewMessage(RoleUser, "สวัสดี")

	assert.Len(t, m.ID, 36)
	assert.Equal(t, RoleUser, m.Role)
	assert.Equal(t, time.UTC, m.Timestamp.Location())
	assert.NotEqual(t, m.ID, NewMessage(RoleUser, "สวัสดี").ID)
}

func TestConversation_RecentMessages(t *testing.T) {
	c := NewConversation("conv-1", "u1")
	before := c.UpdatedAt

	for _, text := range []string{"a", "b", "c"} {
		c.AddMessage(NewMessage(RoleUser, text))
	}

	assert.False(t, c.UpdatedAt.Before(before))

	tests := []struct {
		n    int
		want []string
	}{
		{0, []string{}},
		{2, []string{"b", "c"}},
		{3, []string{"a", "b", "c"}},
		{10, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		got := []string{}
		for _, m := range c.RecentMessages(tt.n) {
			got = append(got, m.Content)
		}
		assert.Equal(t, tt.want, got)
	}

	// The returned slice is a copy.
	recent := c.RecentMessages(1)
	recent[0].Content = "changed"
	assert.Equal(t, "c", c.Messages[2].Content)
}

func TestConversation_JSONRoundTrip(t *testing.T) {
	c := NewConversation("conv-1", "u1")
	c.AddMessage(NewMessage(RoleAssistant, "hello"))
	c.SetMetadata("seeded_from_long_term", true)

	raw, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"conversation_id":"conv-1"`)

	var back Conversation
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, c.Messages[0].ID, back.Messages[0].ID)
	assert.Equal(t, true, back.Metadata["seeded_from_long_term"])
}

// ==========================
// Long-term memory
// ==========================

func analysis(intent string, conf float64, lang string, sentiment *nlu.Sentiment, entities ...nlu.Entity) nlu.AnalysisDocument {
	doc := nlu.AnalysisDocument{
		Intents:   []nlu.Intent{{Name: intent, Confidence: conf}},
		Entities:  entities,
		Sentiment: sentiment,
	}
	if lang != "" {
		doc.Languages = []nlu.Language{{Code: lang, Confidence: 0.9, IsPrimary: true}}
	}
	return doc
}

func TestLongTermMemory_Queries(t *testing.T) {
	m := NewLongTermMemory("u1")
	m.AddAnalysis(analysis("greet", 0.9, "THA", nil))
	m.AddAnalysis(analysis("purchase_intent", 0.8, "THA", nil))
	m.AddAnalysis(analysis("purchase_intent", 0.4, "USA", nil))

	assert.Len(t, m.AnalysesByIntent("purchase_intent"), 2)
	assert.Empty(t, m.AnalysesByIntent("complain_intent"))

	byConfidence := func(d *nlu.AnalysisDocument) float64 {
		top, _ := d.PrimaryIntent()
		return top.Confidence
	}
	important := m.ImportantAnalyses(0.8, byConfidence)
	require.Len(t, important, 2)
	assert.Equal(t, "greet", important[0].PrimaryIntentName())
	assert.Equal(t, "purchase_intent", important[1].PrimaryIntentName())
}

func TestLongTermMemory_CustomerPreferences(t *testing.T) {
	t.Run("empty memory keeps defaults", func(t *testing.T) {
		prefs := NewLongTermMemory("u1").CustomerPreferences()
		assert.Equal(t, "thai", prefs.PreferredLanguage)
		assert.Equal(t, StyleNeutral, prefs.CommunicationStyle)
		assert.Empty(t, prefs.CommonIntents)
		assert.Empty(t, prefs.ProductInterests)
	})

	t.Run("derived preferences", func(t *testing.T) {
		m := NewLongTermMemory("u1")
		m.AddAnalysis(analysis("purchase_intent", 0.9, "USA", &nlu.Sentiment{Label: "positive", Confidence: 0.9},
			nlu.Entity{Type: "product", Value: "iPhone"}, nlu.Entity{Type: "color", Value: "red"}))
		m.AddAnalysis(analysis("purchase_intent", 0.8, "USA", &nlu.Sentiment{Label: "positive", Confidence: 0.8},
			nlu.Entity{Type: "brand", Value: "Apple"}, nlu.Entity{Type: "product", Value: "iPhone"}))
		m.AddAnalysis(analysis("greet", 0.9, "THA", nil))

		prefs := m.CustomerPreferences()
		assert.Equal(t, "english", prefs.PreferredLanguage)
		assert.Equal(t, []IntentCount{{"purchase_intent", 2}, {"greet", 1}}, prefs.CommonIntents)
		assert.Equal(t, []string{"iPhone", "Apple"}, prefs.ProductInterests)
		assert.Equal(t, StyleExpressive, prefs.CommunicationStyle)
	})

	t.Run("reserved style", func(t *testing.T) {
		m := NewLongTermMemory("u1")
		m.AddAnalysis(analysis("greet", 0.9, "", &nlu.Sentiment{Label: "neutral", Confidence: 0.2}))
		assert.Equal(t, StyleReserved, m.CustomerPreferences().CommunicationStyle)
		assert.Equal(t, "thai", m.CustomerPreferences().PreferredLanguage)
	})

	t.Run("common intents capped at five", func(t *testing.T) {
		m := NewLongTermMemory("u1")
		for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
			m.AddAnalysis(analysis(name, 0.9, "", nil))
		}
		assert.Len(t, m.CustomerPreferences().CommonIntents, 5)
	})
}
