package storage

import (
	"context"

	"minbar/internal/models"
)

// Repository exposes the datastore operations required by API handlers and
// the command line tools. Three implementations exist: the JSON file store,
// Postgres, and MongoDB.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	ListBooks() ([]models.Book, error)
	CreateBook(params CreateBookParams) (models.Book, error)
	UpdateBook(id string, update BookUpdate) (models.Book, error)
	DeleteBook(id string) (models.Book, error)

	ListTips() ([]models.Tip, error)
	CreateTip(params CreateTipParams) (models.Tip, error)
	UpdateTip(id string, update TipUpdate) (models.Tip, error)
	DeleteTip(id string) (models.Tip, error)

	ListPosts() ([]models.Post, error)
	CreatePost(params CreatePostParams) (models.Post, error)
	UpdatePost(id string, update PostUpdate) (models.Post, error)
	DeletePost(id string) (models.Post, error)

	CreateUser(params CreateUserParams) (models.User, error)
	ListUsers() ([]models.User, error)
	GetUser(id string) (models.User, bool, error)
	FindUserByUsername(username string) (models.User, bool, error)
	AuthenticateUser(username, password string) (models.User, error)
	SetUserPassword(username, password string) (models.User, error)
	DeleteUser(id string) error
	CountUsers() (int, error)

	SettingEnabled(name string) (bool, error)
	SetSetting(name string, enabled bool) error
}

var _ Repository = (*Storage)(nil)
var _ Repository = (*PostgresRepository)(nil)
var _ Repository = (*MongoRepository)(nil)
