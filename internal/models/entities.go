package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownTable возвращается для таблицы, которой нет в реестре
var ErrUnknownTable = errors.New("unknown table")

// Table names. Каждый тип сущности хранится в собственной таблице.
const (
	TablePilots           = "pilots"
	TableTrainingSessions = "training_sessions"
	TableRaces            = "races"
	TableMaintenance      = "maintenance"
	TableTransactions     = "transactions"
)

// Tables is the registry of cached entity tables.
var Tables = []string{
	TablePilots,
	TableTrainingSessions,
	TableRaces,
	TableMaintenance,
	TableTransactions,
}

// ValidateTable проверяет, что таблица зарегистрирована
func ValidateTable(table string) error {
	for _, t := range Tables {
		if t == table {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownTable, table)
}

// ResourcePath описывает путь REST ресурса вида /table или /table/id
type ResourcePath struct {
	Table string
	ID    string
}

// ParsePath разбирает путь ресурса. Поддерживаются формы "/table" и
// "/table/id"; query string отбрасывается.
func ParsePath(path string) (ResourcePath, error) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return ResourcePath{}, fmt.Errorf("empty resource path")
	}

	parts := strings.Split(trimmed, "/")
	if len(parts) > 2 {
		return ResourcePath{}, fmt.Errorf("unsupported resource path: %s", path)
	}

	rp := ResourcePath{Table: parts[0]}
	if len(parts) == 2 {
		if parts[1] == "" {
			return ResourcePath{}, fmt.Errorf("empty id in resource path: %s", path)
		}
		rp.ID = parts[1]
	}

	if err := ValidateTable(rp.Table); err != nil {
		return ResourcePath{}, err
	}

	return rp, nil
}

// String собирает путь обратно
func (p ResourcePath) String() string {
	if p.ID == "" {
		return "/" + p.Table
	}
	return "/" + p.Table + "/" + p.ID
}

// Pilot представляет пилота команды.
type Pilot struct {
	ID          string    `json:"id"`                    // ID уникальный идентификатор
	FullName    string    `json:"fullName"`              // FullName полное имя
	Nationality string    `json:"nationality,omitempty"` // Nationality гражданство
	Number      int       `json:"number,omitempty"`      // Number стартовый номер
	Active      bool      `json:"active"`                // Active выступает ли пилот в текущем сезоне
	JoinedAt    time.Time `json:"joinedAt,omitempty"`    // JoinedAt дата присоединения к команде
}

// TrainingSession представляет тренировочную сессию пилота.
type TrainingSession struct {
	ID        string    `json:"id"`
	PilotID   string    `json:"pilotId"`
	Track     string    `json:"track"`
	StartedAt time.Time `json:"startedAt"`
	Laps      int       `json:"laps"`
	BestLapMs int64     `json:"bestLapMs,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// RaceEvent представляет гонку в календаре.
type RaceEvent struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Circuit  string    `json:"circuit"`
	Date     time.Time `json:"date"`
	Status   string    `json:"status"`
	PilotIDs []string  `json:"pilotIds,omitempty"`
}

// MaintenanceRecord представляет запись технического обслуживания.
type MaintenanceRecord struct {
	ID          string    `json:"id"`
	Component   string    `json:"component"`
	Description string    `json:"description"`
	PerformedAt time.Time `json:"performedAt"`
	CostCents   int64     `json:"costCents,omitempty"`
}

// Transaction представляет бухгалтерскую проводку.
type Transaction struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
	BookedAt    time.Time `json:"bookedAt"`
	Memo        string    `json:"memo,omitempty"`
}
