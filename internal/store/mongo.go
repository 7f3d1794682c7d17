package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"travelriskbackend/internal/alerts"
)

const alertsCollection = "alerts"

// Mongo is a MongoDB-backed AlertStore. Optimistic locking piggybacks on the
// version field: updates filter on (_id, version) and bump the version
// atomically, so a concurrent writer surfaces as ErrVersionConflict.
type Mongo struct {
	collection *mongo.Collection
}

// NewMongo connects to the given URI and returns a store over the named
// database.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("store: ping mongo: %w", err)
	}

	collection := client.Database(database).Collection(alertsCollection)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "country", Value: 1}, {Key: "severity", Value: -1}}},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("store: create indexes: %w", err)
	}

	return &Mongo{collection: collection}, nil
}

type mongoAlert struct {
	ID                string             `bson:"_id"`
	Title             string             `bson:"title"`
	Summary           string             `bson:"summary"`
	FullContent       string             `bson:"full_content"`
	Category          string             `bson:"category"`
	Severity          int                `bson:"severity"`
	Country           string             `bson:"country"`
	Region            string             `bson:"region,omitempty"`
	Latitude          *float64           `bson:"latitude,omitempty"`
	Longitude         *float64           `bson:"longitude,omitempty"`
	Sources           []alerts.SourceRef `bson:"sources"`
	Verified          bool               `bson:"verified"`
	VerificationScore *float64           `bson:"verification_score,omitempty"`
	Signals           map[string]float64 `bson:"signals,omitempty"`
	Version           int64              `bson:"version"`
	CreatedAt         time.Time          `bson:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at"`
}

func toMongo(a *alerts.Alert) mongoAlert {
	return mongoAlert{
		ID:                a.ID,
		Title:             a.Title,
		Summary:           a.Summary,
		FullContent:       a.FullContent,
		Category:          string(a.Category),
		Severity:          a.Severity,
		Country:           a.Country,
		Region:            a.Region,
		Latitude:          a.Latitude,
		Longitude:         a.Longitude,
		Sources:           a.Sources,
		Verified:          a.Verified,
		VerificationScore: a.VerificationScore,
		Signals:           a.Signals,
		Version:           a.Version,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func (m mongoAlert) toAlert() alerts.Alert {
	category, _ := alerts.ParseCategory(m.Category)
	return alerts.Alert{
		ID:                m.ID,
		Title:             m.Title,
		Summary:           m.Summary,
		FullContent:       m.FullContent,
		Category:          category,
		Severity:          m.Severity,
		Country:           m.Country,
		Region:            m.Region,
		Latitude:          m.Latitude,
		Longitude:         m.Longitude,
		Sources:           m.Sources,
		Verified:          m.Verified,
		VerificationScore: m.VerificationScore,
		Signals:           m.Signals,
		Version:           m.Version,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// Insert stores a new alert document.
func (m *Mongo) Insert(ctx context.Context, alert *alerts.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	alert.Version = 1

	if _, err := m.collection.InsertOne(ctx, toMongo(alert)); err != nil {
		return fmt.Errorf("store: insert alert: %w", err)
	}
	return nil
}

// Update replaces the document if and only if the stored version matches.
func (m *Mongo) Update(ctx context.Context, alert *alerts.Alert) error {
	currentVersion := alert.Version
	alert.Version++

	result, err := m.collection.ReplaceOne(ctx,
		bson.M{"_id": alert.ID, "version": currentVersion},
		toMongo(alert),
	)
	if err != nil {
		alert.Version = currentVersion
		return fmt.Errorf("store: update alert: %w", err)
	}
	if result.MatchedCount == 0 {
		alert.Version = currentVersion
		// Distinguish a missing document from a stale version.
		count, err := m.collection.CountDocuments(ctx, bson.M{"_id": alert.ID})
		if err != nil {
			return fmt.Errorf("store: update alert: %w", err)
		}
		if count == 0 {
			return alerts.ErrNotFound
		}
		return alerts.ErrVersionConflict
	}
	return nil
}

// Get loads one alert by ID.
func (m *Mongo) Get(ctx context.Context, id string) (alerts.Alert, error) {
	var doc mongoAlert
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return alerts.Alert{}, alerts.ErrNotFound
	}
	if err != nil {
		return alerts.Alert{}, fmt.Errorf("store: get alert: %w", err)
	}
	return doc.toAlert(), nil
}

// UpdatedSince returns alerts touched at or after the cutoff, most recent
// first.
func (m *Mongo) UpdatedSince(ctx context.Context, since time.Time) ([]alerts.Alert, error) {
	cursor, err := m.collection.Find(ctx,
		bson.M{"updated_at": bson.M{"$gte": since}},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("store: query trailing window: %w", err)
	}
	defer cursor.Close(ctx)

	var out []alerts.Alert
	for cursor.Next(ctx) {
		var doc mongoAlert
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("store: decode alert: %w", err)
		}
		out = append(out, doc.toAlert())
	}
	return out, cursor.Err()
}

// buildListFilter translates the query contract into a Mongo filter. User
// input goes through QuoteMeta before entering a $regex, so metacharacters
// in a query match literally instead of rewriting the filter.
func buildListFilter(q Query) bson.M {
	filter := bson.M{}
	if q.Category != "" {
		filter["category"] = string(q.Category)
	}
	if q.MinSeverity > 0 {
		filter["severity"] = bson.M{"$gte": q.MinSeverity}
	}
	if q.Country != "" {
		filter["country"] = bson.M{"$regex": "^" + regexp.QuoteMeta(q.Country) + "$", "$options": "i"}
	}
	if q.Region != "" {
		filter["region"] = bson.M{"$regex": "^" + regexp.QuoteMeta(q.Region) + "$", "$options": "i"}
	}
	created := bson.M{}
	if !q.From.IsZero() {
		created["$gte"] = q.From
	}
	if !q.To.IsZero() {
		created["$lte"] = q.To
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	if q.Search != "" {
		needle := regexp.QuoteMeta(q.Search)
		filter["$or"] = bson.A{
			bson.M{"title": bson.M{"$regex": needle, "$options": "i"}},
			bson.M{"summary": bson.M{"$regex": needle, "$options": "i"}},
			bson.M{"full_content": bson.M{"$regex": needle, "$options": "i"}},
		}
	}
	return filter
}

// List applies the query contract server-side.
func (m *Mongo) List(ctx context.Context, q Query) ([]alerts.Alert, int, error) {
	filter := buildListFilter(q)

	total, err := m.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("store: count alerts: %w", err)
	}

	sortField := "created_at"
	if q.SortBy == "severity" {
		sortField = "severity"
	}
	direction := 1
	if q.Desc {
		direction = -1
	}

	opts := options.Find().SetSort(bson.D{{Key: sortField, Value: direction}})
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var out []alerts.Alert
	for cursor.Next(ctx) {
		var doc mongoAlert
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("store: decode alert: %w", err)
		}
		out = append(out, doc.toAlert())
	}
	return out, int(total), cursor.Err()
}
