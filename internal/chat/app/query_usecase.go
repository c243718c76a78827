package app

import (
	"chat_relay_service/internal/chat/domain"
	"chat_relay_service/internal/chat/repository"
	"chat_relay_service/pkg"
)

// QueryUseCase read-only paging and search over a room's history
type QueryUseCase struct {
	msgRepo      repository.MessageRepository
	defaultLimit int
	maxLimit     int
}

// NewQueryUseCase init query use case
func NewQueryUseCase(msgRepo repository.MessageRepository, defaultLimit, maxLimit int) *QueryUseCase {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	if defaultLimit <= 0 || defaultLimit > maxLimit {
		defaultLimit = pkg.Clamp(20, 1, maxLimit)
	}
	return &QueryUseCase{
		msgRepo:      msgRepo,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// GetMessages offset 預設 0, limit 預設 defaultLimit 且不超過 maxLimit
func (uc *QueryUseCase) GetMessages(req domain.GetMessagesRequest) domain.MessagesPage {
	room := domain.NormalizeRoom(req.Room)

	offset := 0
	if req.Offset != nil && *req.Offset > 0 {
		offset = *req.Offset
	}
	limit := uc.defaultLimit
	if req.Limit != nil && *req.Limit > 0 {
		limit = pkg.Clamp(*req.Limit, 1, uc.maxLimit)
	}

	msgs, hasMore := uc.msgRepo.Page(room, offset, limit)
	return domain.MessagesPage{Messages: msgs, Room: room, HasMore: hasMore}
}

// SearchMessages empty query matches the whole room
func (uc *QueryUseCase) SearchMessages(req domain.SearchRequest) domain.SearchResults {
	room := domain.NormalizeRoom(req.Room)
	return domain.SearchResults{Results: uc.msgRepo.Search(room, req.Query), Room: room}
}
