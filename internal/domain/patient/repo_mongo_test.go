package patient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestFilterDocument_Empty(t *testing.T) {
	assert.Equal(t, bson.M{}, filterDocument(Filter{}))
}

func TestFilterDocument_AllConstraints(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := EndOfDay(from, time.UTC)
	doc := filterDocument(Filter{
		Text: "a.b",
		Sex:  SexOther,
		Age:  &AgeRange{Min: 0, Max: 17, Bounded: true},
		From: &from,
		To:   &to,
	})

	assert.Equal(t, "Other", doc["sex"])
	assert.Equal(t, bson.M{"$gte": 0, "$lte": 17}, doc["age"])
	assert.Equal(t, bson.M{"$gte": from, "$lte": to}, doc["admissionDate"])

	or, ok := doc["$or"].(bson.A)
	require.True(t, ok, "expected $or array")
	require.Len(t, or, 3)
	rx := primitive.Regex{Pattern: `a\.b`, Options: "i"}
	assert.Equal(t, bson.M{"fullName": rx}, or[0])
	assert.Equal(t, bson.M{"nationalId": rx}, or[1])
	assert.Equal(t, bson.M{"diagnosis": rx}, or[2])
}

func TestFilterDocument_OpenAgeRange(t *testing.T) {
	doc := filterDocument(Filter{Age: &AgeRange{Min: 65}})
	assert.Equal(t, bson.M{"$gte": 65}, doc["age"])
}

func TestMongoRecord_ToRecord(t *testing.T) {
	oid := primitive.NewObjectID()
	d := mongoRecord{ID: oid, NationalID: "1-9", FullName: "Ana", Age: 30, Sex: "F", Reviewed: true}
	r := d.toRecord()
	assert.Equal(t, oid.Hex(), r.ID)
	assert.Equal(t, SexFemale, r.Sex)
	assert.True(t, r.Reviewed)
}

func TestNewMongoRecord_TruncatesAdmissionDate(t *testing.T) {
	admitted := time.Date(2024, 1, 10, 8, 30, 0, 123456789, time.UTC)
	rec := &Record{NationalID: "1-9", FullName: "Ana", Sex: SexFemale, AdmissionDate: admitted}

	d := newMongoRecord(rec)
	want := time.Date(2024, 1, 10, 8, 30, 0, 123000000, time.UTC)
	assert.True(t, d.AdmissionDate.Equal(want), "stored %s", d.AdmissionDate)
	assert.True(t, rec.AdmissionDate.Equal(want), "returned %s", rec.AdmissionDate)
	assert.Equal(t, "F", d.Sex)
}

func TestMongoRepo_InvalidID(t *testing.T) {
	repo := &recordRepoMongo{nowFunc: time.Now}
	_, err := repo.GetByID(context.Background(), "123")
	assert.ErrorIs(t, err, ErrInvalidID)
	err = repo.Update(context.Background(), &Record{ID: "zz"})
	assert.ErrorIs(t, err, ErrInvalidID)
}

// -- Integration (requires TEST_MONGO_URI) --

func TestMongoRepo_Integration(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(context.Background()) })

	db := client.Database("records_test_" + primitive.NewObjectID().Hex())
	t.Cleanup(func() { db.Drop(context.Background()) })

	require.NoError(t, EnsureMongoIndexes(ctx, db))
	require.NoError(t, EnsureMongoIndexes(ctx, db), "index creation must be repeatable")

	storeContract(t, NewMongoRepo(db))
}
