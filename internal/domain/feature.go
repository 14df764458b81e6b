// Package domain contains core business types and interfaces.
//
// This file defines the plan features synced onto access records and the
// static table pairing each metered feature with its counter and limit.
package domain

// Variable names written onto access records.
const (
	VarMaxLydiaSessions     = "MAX_LYDIA_SESSIONS"
	VarLydiaSessions        = "LYDIA_SESSIONS"
	VarMaxNLPCharacters     = "MAX_NLP_CHARACTERS"
	VarMaxGeneralization    = "MAX_GENERALIZATION_SIZE"
	VarMaxNSFWChecks        = "MAX_NSFW_CHECKS"
	VarNSFWChecks           = "NFW_CHECKS" // historical spelling, kept for stored records
	VarLimitedNamedEntities = "LIMITED_NAMED_ENTITIES"
	VarMaxPOSChecks         = "MAX_POS_CHECKS"
	VarPOSChecks            = "POS_CHECKS"
	VarMaxSentimentChecks   = "MAX_SENTIMENT_CHECKS"
	VarSentimentChecks      = "SENTIMENT_CHECKS"
	VarMaxEmotionChecks     = "MAX_EMOTION_CHECKS"
	VarEmotionChecks        = "EMOTION_CHECKS"
	VarMaxSpamChecks        = "MAX_SPAM_CHECKS"
	VarSpamChecks           = "SPAM_CHECKS"
	VarMaxSentenceSplits    = "MAX_SENTENCE_SPLITS"
	VarSentenceSplits       = "SENTENCE_SPLITS"
	VarMaxLanguageChecks    = "MAX_LANGUAGE_CHECKS"
	VarLanguageChecks       = "LANGUAGE_CHECKS"
	VarMaxNERChecks         = "MAX_NER_CHECKS"
	VarNERChecks            = "NER_CHECKS"
)

// FeatureSet is the standardised feature map derived from a subscription plan.
type FeatureSet map[string]any

// FeatureKind is how a plan feature value is interpreted.
type FeatureKind int

const (
	FeatureKindInt FeatureKind = iota
	FeatureKindBool
)

// PlanFeature describes one key of a FeatureSet and its effect on an access
// record.
type PlanFeature struct {
	Key     string      // Key in the FeatureSet
	Limit   string      // Variable receiving the value
	Counter string      // Counter initialised to 0 when absent, empty if none
	Kind    FeatureKind // Expected value type
}

// PlanFeatures lists every feature a plan must carry for a sync to succeed.
var PlanFeatures = []PlanFeature{
	{Key: "LYDIA_SESSIONS", Limit: VarMaxLydiaSessions, Counter: VarLydiaSessions},
	{Key: VarMaxNLPCharacters, Limit: VarMaxNLPCharacters},
	{Key: VarMaxGeneralization, Limit: VarMaxGeneralization},
	{Key: VarMaxNSFWChecks, Limit: VarMaxNSFWChecks, Counter: VarNSFWChecks},
	{Key: VarLimitedNamedEntities, Limit: VarLimitedNamedEntities, Kind: FeatureKindBool},
	{Key: VarMaxPOSChecks, Limit: VarMaxPOSChecks, Counter: VarPOSChecks},
	{Key: VarMaxSentimentChecks, Limit: VarMaxSentimentChecks, Counter: VarSentimentChecks},
	{Key: VarMaxEmotionChecks, Limit: VarMaxEmotionChecks, Counter: VarEmotionChecks},
	{Key: VarMaxSpamChecks, Limit: VarMaxSpamChecks, Counter: VarSpamChecks},
	{Key: VarMaxSentenceSplits, Limit: VarMaxSentenceSplits, Counter: VarSentenceSplits},
	{Key: VarMaxLanguageChecks, Limit: VarMaxLanguageChecks, Counter: VarLanguageChecks},
	{Key: VarMaxNERChecks, Limit: VarMaxNERChecks, Counter: VarNERChecks},
}

// FeatureName identifies a metered API feature.
type FeatureName string

const (
	FeatureLydiaSessions     FeatureName = "lydia_sessions"
	FeatureNSFW              FeatureName = "nsfw_classification"
	FeaturePOS               FeatureName = "pos_tagging"
	FeatureSentiment         FeatureName = "sentiment"
	FeatureEmotion           FeatureName = "emotion"
	FeatureSpam              FeatureName = "spam_prediction"
	FeatureSentenceSplit     FeatureName = "sentence_split"
	FeatureLanguageDetection FeatureName = "language_detection"
	FeatureNER               FeatureName = "named_entities"
)

// Quota pairs a feature's usage counter with its limit variable.
type Quota struct {
	Counter string
	Limit   string
}

// Features maps each metered feature to its counter and limit.
var Features = map[FeatureName]Quota{
	FeatureLydiaSessions:     {Counter: VarLydiaSessions, Limit: VarMaxLydiaSessions},
	FeatureNSFW:              {Counter: VarNSFWChecks, Limit: VarMaxNSFWChecks},
	FeaturePOS:               {Counter: VarPOSChecks, Limit: VarMaxPOSChecks},
	FeatureSentiment:         {Counter: VarSentimentChecks, Limit: VarMaxSentimentChecks},
	FeatureEmotion:           {Counter: VarEmotionChecks, Limit: VarMaxEmotionChecks},
	FeatureSpam:              {Counter: VarSpamChecks, Limit: VarMaxSpamChecks},
	FeatureSentenceSplit:     {Counter: VarSentenceSplits, Limit: VarMaxSentenceSplits},
	FeatureLanguageDetection: {Counter: VarLanguageChecks, Limit: VarMaxLanguageChecks},
	FeatureNER:               {Counter: VarNERChecks, Limit: VarMaxNERChecks},
}

// FeatureOrder is the stable listing order used in usage responses.
var FeatureOrder = []FeatureName{
	FeatureSentiment,
	FeatureEmotion,
	FeatureLanguageDetection,
	FeatureNER,
	FeaturePOS,
	FeatureSentenceSplit,
	FeatureSpam,
	FeatureNSFW,
	FeatureLydiaSessions,
}

// UsageCounters lists every counter reset on a billing cycle rollover.
var UsageCounters = []string{
	VarLydiaSessions,
	VarNSFWChecks,
	VarPOSChecks,
	VarSentimentChecks,
	VarEmotionChecks,
	VarSpamChecks,
	VarSentenceSplits,
	VarLanguageChecks,
	VarNERChecks,
}

// FeatureUsage is the current usage of one feature.
type FeatureUsage struct {
	Feature   FeatureName `json:"feature"`
	Used      int64       `json:"used"`
	Limit     int64       `json:"limit"`
	Unlimited bool        `json:"unlimited"`
}
