package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/repository"
)

const (
	productsColl   = "products"
	productionColl = "production_events"
	salesColl      = "sales_events"
	remainingColl  = "remaining_stock"
	batchesColl    = "batches"
	sequencesColl  = "batch_sequences"
	reportsColl    = "shift_reports"
	selectionsColl = "shift_selections"
)

var _ repository.Store = (*MongoDBRepository)(nil)

// MongoDBRepository implements repository.Store on MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewMongoDBRepository connects, pings and ensures indexes.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	r := &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MongoDBRepository) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		productionColl: {
			{Keys: bson.D{{Key: "shift", Value: 1}, {Key: "occurred_at", Value: 1}}},
		},
		salesColl: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "shift", Value: 1}, {Key: "occurred_at", Value: 1}}},
		},
		remainingColl: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "product_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		batchesColl: {
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "batch_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		reportsColl: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "shift", Value: 1}, {Key: "day", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for coll, idx := range indexes {
		if _, err := r.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// CreateProduct inserts a catalog entry.
func (r *MongoDBRepository) CreateProduct(ctx context.Context, p *models.Product) error {
	return r.insert(ctx, productsColl, p)
}

// UpdateProduct replaces a catalog entry.
func (r *MongoDBRepository) UpdateProduct(ctx context.Context, p *models.Product) error {
	res, err := r.db.Collection(productsColl).ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("product %s: %w", p.ID, models.ErrNotFound)
	}
	return nil
}

// GetProduct loads one product.
func (r *MongoDBRepository) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := r.findOne(ctx, productsColl, bson.M{"_id": id}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns products in creation order.
func (r *MongoDBRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if err := r.find(ctx, productsColl, bson.M{}, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertProduction appends a production event.
func (r *MongoDBRepository) InsertProduction(ctx context.Context, e *models.ProductionEvent) error {
	return r.insert(ctx, productionColl, e)
}

// InsertSale appends a sales event.
func (r *MongoDBRepository) InsertSale(ctx context.Context, e *models.SalesEvent) error {
	return r.insert(ctx, salesColl, e)
}

// ListProduction returns production events matching f.
func (r *MongoDBRepository) ListProduction(ctx context.Context, f repository.EventFilter) ([]models.ProductionEvent, error) {
	var out []models.ProductionEvent
	if err := r.find(ctx, productionColl, eventQuery(f), eventSort(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSales returns sales events matching f.
func (r *MongoDBRepository) ListSales(ctx context.Context, f repository.EventFilter) ([]models.SalesEvent, error) {
	var out []models.SalesEvent
	if err := r.find(ctx, salesColl, eventQuery(f), eventSort(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSales removes every sales event of an owner for a shift.
func (r *MongoDBRepository) DeleteSales(ctx context.Context, ownerID string, shift models.Shift) (int64, error) {
	res, err := r.db.Collection(salesColl).DeleteMany(ctx, bson.M{"owner_id": ownerID, "shift": shift})
	if err != nil {
		return 0, fmt.Errorf("failed to delete sales: %w", err)
	}
	return res.DeletedCount, nil
}

// UpsertRemaining sets the leftover count of an owner for a product.
func (r *MongoDBRepository) UpsertRemaining(ctx context.Context, e *models.RemainingStockEntry) error {
	filter := bson.M{"owner_id": e.OwnerID, "product_id": e.ProductID}
	update := bson.M{
		"$set":         bson.M{"quantity": e.Quantity, "updated_at": e.UpdatedAt},
		"$setOnInsert": bson.M{"_id": e.ID},
	}
	_, err := r.db.Collection(remainingColl).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert remaining stock: %w", err)
	}
	return nil
}

// ListRemaining returns remaining entries of ownerID, or of everyone when empty.
func (r *MongoDBRepository) ListRemaining(ctx context.Context, ownerID string) ([]models.RemainingStockEntry, error) {
	filter := bson.M{}
	if ownerID != "" {
		filter["owner_id"] = ownerID
	}
	var out []models.RemainingStockEntry
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}})
	if err := r.find(ctx, remainingColl, filter, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertBatch inserts a new batch; a taken batch number yields ErrDuplicateKey.
func (r *MongoDBRepository) InsertBatch(ctx context.Context, b *models.Batch) error {
	return r.insert(ctx, batchesColl, b)
}

// GetBatch loads one batch.
func (r *MongoDBRepository) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	var b models.Batch
	if err := r.findOne(ctx, batchesColl, bson.M{"_id": id}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBatches returns batches matching f, oldest first.
func (r *MongoDBRepository) ListBatches(ctx context.Context, f repository.BatchFilter) ([]models.Batch, error) {
	filter := bson.M{}
	if f.ProductID != "" {
		filter["product_id"] = f.ProductID
	}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	if f.Shift != "" {
		filter["shift"] = f.Shift
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	var out []models.Batch
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if err := r.find(ctx, batchesColl, filter, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateBatch replaces b only while its stored status equals expected.
func (r *MongoDBRepository) UpdateBatch(ctx context.Context, b *models.Batch, expected models.BatchStatus) error {
	res, err := r.db.Collection(batchesColl).ReplaceOne(ctx, bson.M{"_id": b.ID, "status": expected}, b)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrConflict
	}
	return nil
}

// NextBatchSequence increments the per-product counter server side.
func (r *MongoDBRepository) NextBatchSequence(ctx context.Context, productID string) (int64, error) {
	var seq models.BatchSequence
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.db.Collection(sequencesColl).
		FindOneAndUpdate(ctx, bson.M{"_id": productID}, bson.M{"$inc": bson.M{"last_no": 1}}, opts).
		Decode(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to advance batch sequence: %w", err)
	}
	return seq.LastNo, nil
}

// FindReport loads the report stored under key.
func (r *MongoDBRepository) FindReport(ctx context.Context, key models.ReportKey) (*models.ShiftReport, error) {
	var rep models.ShiftReport
	filter := bson.M{"owner_id": key.OwnerID, "shift": key.Shift, "day": key.Day}
	if err := r.findOne(ctx, reportsColl, filter, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// InsertReport inserts a report; an existing key yields ErrDuplicateKey.
func (r *MongoDBRepository) InsertReport(ctx context.Context, rep *models.ShiftReport) error {
	return r.insert(ctx, reportsColl, rep)
}

// UpdateReport overwrites the stored report with the same id.
func (r *MongoDBRepository) UpdateReport(ctx context.Context, rep *models.ShiftReport) error {
	res, err := r.db.Collection(reportsColl).ReplaceOne(ctx, bson.M{"_id": rep.ID}, rep)
	if err != nil {
		return fmt.Errorf("failed to update shift report: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("shift report %s: %w", rep.ID, models.ErrNotFound)
	}
	return nil
}

// GetShiftSelection loads the persisted shift of ownerID.
func (r *MongoDBRepository) GetShiftSelection(ctx context.Context, ownerID string) (*models.ShiftSelection, error) {
	var sel models.ShiftSelection
	if err := r.findOne(ctx, selectionsColl, bson.M{"_id": ownerID}, &sel); err != nil {
		return nil, err
	}
	return &sel, nil
}

// SaveShiftSelection upserts the shift of an owner.
func (r *MongoDBRepository) SaveShiftSelection(ctx context.Context, s *models.ShiftSelection) error {
	_, err := r.db.Collection(selectionsColl).ReplaceOne(ctx, bson.M{"_id": s.OwnerID}, s, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save shift selection: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoDBRepository) insert(ctx context.Context, coll string, doc interface{}) error {
	if _, err := r.db.Collection(coll).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert into %s: %w", coll, repository.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to insert into %s: %w", coll, err)
	}
	return nil
}

func (r *MongoDBRepository) findOne(ctx context.Context, coll string, filter bson.M, out interface{}) error {
	err := r.db.Collection(coll).FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", coll, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", coll, err)
	}
	return nil
}

func (r *MongoDBRepository) find(ctx context.Context, coll string, filter bson.M, opts *options.FindOptions, out interface{}) error {
	cursor, err := r.db.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", coll, err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", coll, err)
	}
	r.logger.Debug("query executed", zap.String("collection", coll), zap.Any("filter", filter))
	return nil
}

func eventQuery(f repository.EventFilter) bson.M {
	filter := bson.M{}
	if f.ProductID != "" {
		filter["product_id"] = f.ProductID
	}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	if f.Shift != "" {
		filter["shift"] = f.Shift
	}
	window := bson.M{}
	if !f.From.IsZero() {
		window["$gte"] = f.From
	}
	if !f.To.IsZero() {
		window["$lt"] = f.To
	}
	if len(window) > 0 {
		filter["occurred_at"] = window
	}
	return filter
}

func eventSort() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "_id", Value: 1}})
}
