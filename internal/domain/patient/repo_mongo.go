package patient

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the Mongo collection holding patient records.
const CollectionName = "patients"

// mongoRecord is the persisted document shape.
type mongoRecord struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	NationalID     string             `bson:"nationalId"`
	FullName       string             `bson:"fullName"`
	Age            int                `bson:"age"`
	Sex            string             `bson:"sex"`
	PhotoReference string             `bson:"photoReference"`
	AdmissionDate  time.Time          `bson:"admissionDate"`
	Diagnosis      string             `bson:"diagnosis"`
	Reviewed       bool               `bson:"reviewed"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
}

func (d *mongoRecord) toRecord() *Record {
	return &Record{
		ID:             d.ID.Hex(),
		NationalID:     d.NationalID,
		FullName:       d.FullName,
		Age:            d.Age,
		Sex:            Sex(d.Sex),
		PhotoReference: d.PhotoReference,
		AdmissionDate:  d.AdmissionDate,
		Diagnosis:      d.Diagnosis,
		Reviewed:       d.Reviewed,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// newMongoRecord maps rec onto its stored shape. Dates are cut to the
// millisecond so what rec holds afterwards is what a later read returns.
func newMongoRecord(rec *Record) mongoRecord {
	rec.AdmissionDate = rec.AdmissionDate.Truncate(time.Millisecond)
	return mongoRecord{
		NationalID:     rec.NationalID,
		FullName:       rec.FullName,
		Age:            rec.Age,
		Sex:            string(rec.Sex),
		PhotoReference: rec.PhotoReference,
		AdmissionDate:  rec.AdmissionDate,
		Diagnosis:      rec.Diagnosis,
		Reviewed:       rec.Reviewed,
	}
}

type recordRepoMongo struct {
	coll    *mongo.Collection
	nowFunc func() time.Time
}

// NewMongoRepo returns a Repository backed by the patients collection of db.
func NewMongoRepo(db *mongo.Database) Repository {
	return &recordRepoMongo{coll: db.Collection(CollectionName), nowFunc: time.Now}
}

// EnsureMongoIndexes creates the unique national ID index. It is idempotent.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(CollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "nationalId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_national_id"),
	})
	if err != nil {
		return fmt.Errorf("create patients index: %w", err)
	}
	return nil
}

// now truncates to the millisecond precision BSON dates carry.
func (r *recordRepoMongo) now() time.Time {
	return r.nowFunc().UTC().Truncate(time.Millisecond)
}

func (r *recordRepoMongo) Create(ctx context.Context, rec *Record) error {
	now := r.now()
	doc := newMongoRecord(rec)
	doc.ID = primitive.NewObjectID()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	rec.ID = doc.ID.Hex()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

func (r *recordRepoMongo) GetByID(ctx context.Context, id string) (*Record, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	var doc mongoRecord
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return doc.toRecord(), nil
}

func (r *recordRepoMongo) Update(ctx context.Context, rec *Record) error {
	oid, err := primitive.ObjectIDFromHex(rec.ID)
	if err != nil {
		return ErrInvalidID
	}
	now := r.now()
	doc := newMongoRecord(rec)
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"nationalId":     doc.NationalID,
		"fullName":       doc.FullName,
		"age":            doc.Age,
		"sex":            doc.Sex,
		"photoReference": doc.PhotoReference,
		"admissionDate":  doc.AdmissionDate,
		"diagnosis":      doc.Diagnosis,
		"reviewed":       doc.Reviewed,
		"updatedAt":      now,
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("update patient: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	rec.UpdatedAt = now
	return nil
}

func (r *recordRepoMongo) Find(ctx context.Context, f Filter) ([]*Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, filterDocument(f), opts)
	if err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}
	var docs []mongoRecord
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode patients: %w", err)
	}

	records := make([]*Record, 0, len(docs))
	for i := range docs {
		records = append(records, docs[i].toRecord())
	}
	return records, nil
}

// filterDocument translates f into a query document. The text token is
// quoted so it always matches literally.
func filterDocument(f Filter) bson.M {
	filter := bson.M{}
	if f.Sex != "" {
		filter["sex"] = string(f.Sex)
	}
	if f.Age != nil {
		cond := bson.M{"$gte": f.Age.Min}
		if f.Age.Bounded {
			cond["$lte"] = f.Age.Max
		}
		filter["age"] = cond
	}
	if f.From != nil || f.To != nil {
		cond := bson.M{}
		if f.From != nil {
			cond["$gte"] = *f.From
		}
		if f.To != nil {
			cond["$lte"] = *f.To
		}
		filter["admissionDate"] = cond
	}
	if f.Text != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(f.Text), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"fullName": rx},
			bson.M{"nationalId": rx},
			bson.M{"diagnosis": rx},
		}
	}
	return filter
}
