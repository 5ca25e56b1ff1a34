package api

// TokenRequest запрос на выпуск токена идентичности игрока
type TokenRequest struct {
	PlayerID string `json:"player_id"` // идентификатор игрока
}

// TokenResponse представляет ответ с токеном доступа
type TokenResponse struct {
	AccessToken string `json:"access_token"` // JWT access token
	PlayerID    string `json:"player_id"`    // игрок, которому выдан токен
	ExpiresIn   int64  `json:"expires_in"`   // время жизни access token в секундах
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version,omitempty"`
	Terminals    int    `json:"terminals"`
	Subscribers  int    `json:"subscribers"`
	Reservations int    `json:"reservations"`
}
