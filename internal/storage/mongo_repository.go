package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"minbar/internal/auth"
	"minbar/internal/models"
)

// MongoConfig carries connection settings for the Mongo backend.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// MongoRepository stores content, users and settings in MongoDB collections.
type MongoRepository struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoRepository connects to the deployment named by the URI and
// prepares the collections, including the unique username index.
func NewMongoRepository(uri string, opts ...Option) (*MongoRepository, error) {
	cfg := MongoConfig{URI: uri, Database: "minbar", ConnectTimeout: 10 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt.applyMongo(&cfg)
		}
	}
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	repo := &MongoRepository{client: client, database: client.Database(cfg.Database)}
	if err := repo.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.users().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("ensure username index: %w", err)
	}
	return nil
}

func (r *MongoRepository) books() *mongo.Collection    { return r.database.Collection("books") }
func (r *MongoRepository) tips() *mongo.Collection     { return r.database.Collection("tips") }
func (r *MongoRepository) posts() *mongo.Collection    { return r.database.Collection("posts") }
func (r *MongoRepository) users() *mongo.Collection    { return r.database.Collection("users") }
func (r *MongoRepository) settings() *mongo.Collection { return r.database.Collection("settings") }

// Ping verifies the deployment answers on the primary.
func (r *MongoRepository) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client, bounded by the context deadline.
func (r *MongoRepository) Close(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Disconnect(ctx)
}

var contentSortAscending = options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

// Posts render newest-first on the announcements page.
var contentSortNewestFirst = options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})

// updatePipeline builds a $set stage applying the provided fields plus an
// updatedAt strictly greater than createdAt.
func updatePipeline(fields bson.M) mongo.Pipeline {
	set := bson.M{
		"updatedAt": bson.M{"$max": bson.A{nowMillis(), bson.M{"$add": bson.A{"$createdAt", 1}}}},
	}
	for key, value := range fields {
		set[key] = value
	}
	return mongo.Pipeline{bson.D{{Key: "$set", Value: set}}}
}

var updateAfter = options.FindOneAndUpdate().SetReturnDocument(options.After)

// Book operations

func (r *MongoRepository) ListBooks() ([]models.Book, error) {
	ctx := context.Background()
	cursor, err := r.books().Find(ctx, bson.M{}, contentSortAscending)
	if err != nil {
		return nil, err
	}
	books := make([]models.Book, 0)
	if err := cursor.All(ctx, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *MongoRepository) CreateBook(params CreateBookParams) (models.Book, error) {
	title := strings.TrimSpace(params.Title)
	url := strings.TrimSpace(params.URL)
	if title == "" || url == "" {
		return models.Book{}, ValidationError("title and url are required")
	}
	book := models.Book{ID: newID(), Title: title, URL: url, CreatedAt: nowMillis()}
	if _, err := r.books().InsertOne(context.Background(), book); err != nil {
		return models.Book{}, err
	}
	return book, nil
}

func (r *MongoRepository) UpdateBook(id string, update BookUpdate) (models.Book, error) {
	fields := bson.M{}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return models.Book{}, ValidationError("title cannot be empty")
		}
		fields["title"] = title
	}
	if update.URL != nil {
		url := strings.TrimSpace(*update.URL)
		if url == "" {
			return models.Book{}, ValidationError("url cannot be empty")
		}
		fields["url"] = url
	}
	var book models.Book
	err := r.books().FindOneAndUpdate(context.Background(), bson.M{"_id": id}, updatePipeline(fields), updateAfter).Decode(&book)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
		}
		return models.Book{}, err
	}
	return book, nil
}

func (r *MongoRepository) DeleteBook(id string) (models.Book, error) {
	var book models.Book
	err := r.books().FindOneAndDelete(context.Background(), bson.M{"_id": id}).Decode(&book)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
		}
		return models.Book{}, err
	}
	return book, nil
}

// Tip operations

func (r *MongoRepository) ListTips() ([]models.Tip, error) {
	ctx := context.Background()
	cursor, err := r.tips().Find(ctx, bson.M{}, contentSortAscending)
	if err != nil {
		return nil, err
	}
	tips := make([]models.Tip, 0)
	if err := cursor.All(ctx, &tips); err != nil {
		return nil, err
	}
	return tips, nil
}

func (r *MongoRepository) CreateTip(params CreateTipParams) (models.Tip, error) {
	tip := models.Tip{
		ID:        newID(),
		Text:      strings.TrimSpace(params.Text),
		ImageURL:  strings.TrimSpace(params.ImageURL),
		CreatedAt: nowMillis(),
	}
	if _, err := r.tips().InsertOne(context.Background(), tip); err != nil {
		return models.Tip{}, err
	}
	return tip, nil
}

func (r *MongoRepository) UpdateTip(id string, update TipUpdate) (models.Tip, error) {
	fields := bson.M{}
	if update.Text != nil {
		fields["text"] = strings.TrimSpace(*update.Text)
	}
	if update.ImageURL != nil {
		fields["imageUrl"] = strings.TrimSpace(*update.ImageURL)
	}
	var tip models.Tip
	err := r.tips().FindOneAndUpdate(context.Background(), bson.M{"_id": id}, updatePipeline(fields), updateAfter).Decode(&tip)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Tip{}, fmt.Errorf("tip %s: %w", id, ErrNotFound)
		}
		return models.Tip{}, err
	}
	return tip, nil
}

func (r *MongoRepository) DeleteTip(id string) (models.Tip, error) {
	var tip models.Tip
	err := r.tips().FindOneAndDelete(context.Background(), bson.M{"_id": id}).Decode(&tip)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Tip{}, fmt.Errorf("tip %s: %w", id, ErrNotFound)
		}
		return models.Tip{}, err
	}
	return tip, nil
}

// Post operations

func (r *MongoRepository) ListPosts() ([]models.Post, error) {
	ctx := context.Background()
	cursor, err := r.posts().Find(ctx, bson.M{}, contentSortNewestFirst)
	if err != nil {
		return nil, err
	}
	posts := make([]models.Post, 0)
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *MongoRepository) CreatePost(params CreatePostParams) (models.Post, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Post{}, ValidationError("title is required")
	}
	post := models.Post{
		ID:          newID(),
		Title:       title,
		Description: strings.TrimSpace(params.Description),
		VideoURL:    strings.TrimSpace(params.VideoURL),
		CreatedAt:   nowMillis(),
	}
	if _, err := r.posts().InsertOne(context.Background(), post); err != nil {
		return models.Post{}, err
	}
	return post, nil
}

func (r *MongoRepository) UpdatePost(id string, update PostUpdate) (models.Post, error) {
	fields := bson.M{}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return models.Post{}, ValidationError("title cannot be empty")
		}
		fields["title"] = title
	}
	if update.Description != nil {
		fields["description"] = strings.TrimSpace(*update.Description)
	}
	if update.VideoURL != nil {
		fields["videoUrl"] = strings.TrimSpace(*update.VideoURL)
	}
	var post models.Post
	err := r.posts().FindOneAndUpdate(context.Background(), bson.M{"_id": id}, updatePipeline(fields), updateAfter).Decode(&post)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Post{}, fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		return models.Post{}, err
	}
	return post, nil
}

func (r *MongoRepository) DeletePost(id string) (models.Post, error) {
	var post models.Post
	err := r.posts().FindOneAndDelete(context.Background(), bson.M{"_id": id}).Decode(&post)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Post{}, fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		return models.Post{}, err
	}
	return post, nil
}

// User operations

func (r *MongoRepository) CreateUser(params CreateUserParams) (models.User, error) {
	username := normalizeUsername(params.Username)
	if username == "" {
		return models.User{}, ValidationError("username is required")
	}
	if len(params.Password) < 8 {
		return models.User{}, ValidationError("password must be at least 8 characters")
	}
	role := models.RoleAdmin
	if strings.TrimSpace(params.Role) != "" {
		normalized, ok := models.NormalizeRole(params.Role)
		if !ok {
			return models.User{}, ValidationError("unknown role " + params.Role)
		}
		role = normalized
	}
	hashed, err := auth.HashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := models.User{
		ID:           newID(),
		Username:     username,
		PasswordHash: hashed,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := r.users().InsertOne(context.Background(), user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, ErrUsernameTaken
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoRepository) ListUsers() ([]models.User, error) {
	ctx := context.Background()
	cursor, err := r.users().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *MongoRepository) GetUser(id string) (models.User, bool, error) {
	var user models.User
	err := r.users().FindOne(context.Background(), bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, false, nil
		}
		return models.User{}, false, err
	}
	return user, true, nil
}

func (r *MongoRepository) FindUserByUsername(username string) (models.User, bool, error) {
	var user models.User
	err := r.users().FindOne(context.Background(), bson.M{"username": normalizeUsername(username)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, false, nil
		}
		return models.User{}, false, err
	}
	return user, true, nil
}

func (r *MongoRepository) AuthenticateUser(username, password string) (models.User, error) {
	if password == "" {
		return models.User{}, auth.ErrInvalidCredentials
	}
	user, ok, err := r.FindUserByUsername(username)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, auth.ErrInvalidCredentials
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoRepository) SetUserPassword(username, password string) (models.User, error) {
	if len(password) < 8 {
		return models.User{}, ValidationError("password must be at least 8 characters")
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	var user models.User
	err = r.users().FindOneAndUpdate(
		context.Background(),
		bson.M{"username": normalizeUsername(username)},
		bson.M{"$set": bson.M{"passwordHash": hashed}},
		updateAfter,
	).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoRepository) DeleteUser(id string) error {
	ctx := context.Background()
	user, ok, err := r.GetUser(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if user.Role == models.RoleSuperadmin {
		remaining, err := r.users().CountDocuments(ctx, bson.M{
			"role": string(models.RoleSuperadmin),
			"_id":  bson.M{"$ne": id},
		})
		if err != nil {
			return err
		}
		if remaining == 0 {
			return ValidationError("cannot delete the last superadmin")
		}
	}
	_, err = r.users().DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *MongoRepository) CountUsers() (int, error) {
	count, err := r.users().CountDocuments(context.Background(), bson.M{})
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Setting operations

func (r *MongoRepository) SettingEnabled(name string) (bool, error) {
	var setting models.Setting
	err := r.settings().FindOne(context.Background(), bson.M{"_id": name}).Decode(&setting)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return setting.Enabled, nil
}

func (r *MongoRepository) SetSetting(name string, enabled bool) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError("setting name is required")
	}
	_, err := r.settings().UpdateOne(
		context.Background(),
		bson.M{"_id": name},
		bson.M{"$set": bson.M{"enabled": enabled}},
		options.Update().SetUpsert(true),
	)
	return err
}
