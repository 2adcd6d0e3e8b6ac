package opensearch

import _ "embed"

// Маппинг индекса событий. Текстовые поля дублируются keyword-полем
// с lowercase нормализатором для поиска подстроки без учета регистра.
//
//go:embed mappings/events.json
var eventsMapping string
