package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalysisDocument_PrimaryIntent(t *testing.T) {
	var nilDoc *AnalysisDocument
	_, ok := nilDoc.PrimaryIntent()
	assert.False(t, ok)
	assert.Equal(t, "", nilDoc.PrimaryIntentName())

	doc := &AnalysisDocument{Intents: []Intent{
		{Name: "greet", Confidence: 0.7},
		{Name: "purchase_intent", Confidence: 0.9},
		{Name: "purchase_intent", Confidence: 0.9},
	}}
	top, ok := doc.PrimaryIntent()
	assert.True(t, ok)
	assert.Equal(t, "purchase_intent", top.Name)
	assert.True(t, doc.HasIntent("greet"))
	assert.False(t, doc.HasIntent("support_intent"))
}

func TestAnalysisDocument_PrimaryLanguageTakesFirstFlagged(t *testing.T) {
	doc := &AnalysisDocument{Languages: []Language{
		{Code: "USA", IsPrimary: false},
		{Code: "THA", IsPrimary: true},
		{Code: "ENG", IsPrimary: true},
	}}
	l, ok := doc.PrimaryLanguage()
	assert.True(t, ok)
	assert.Equal(t, "THA", l.Code)
}

func TestAnalysisDocument_ValidEntities(t *testing.T) {
	doc := &AnalysisDocument{Entities: []Entity{
		{Type: "brand", Value: "iPhone"},
		{Type: "product", Value: "Galaxy"},
		{Type: "product", Value: ""},
	}}
	valid := doc.ValidEntities("อยากได้ IPHONE 15")
	assert.Len(t, valid, 1)
	assert.Equal(t, "iPhone", valid[0].Value)
}
