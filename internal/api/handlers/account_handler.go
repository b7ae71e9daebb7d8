package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postlater/internal/adapter"
	"github.com/maheshrc27/postlater/internal/models"
	"github.com/maheshrc27/postlater/internal/repository"
	"github.com/maheshrc27/postlater/internal/service"
	"github.com/maheshrc27/postlater/internal/transfer"
	"golang.org/x/oauth2"
)

type AdapterRegistry interface {
	Resolve(account *models.Account) (adapter.Adapter, error)
	Supports(accountType models.AccountType) bool
	EncodeCredential(token *oauth2.Token) (string, error)
}

type AccountHandler struct {
	ar       repository.AccountRepository
	registry AdapterRegistry
	profiles *adapter.ProfileCache
	timeout  time.Duration
}

func NewAccountHandler(ar repository.AccountRepository, registry AdapterRegistry, profiles *adapter.ProfileCache, timeout time.Duration) *AccountHandler {
	return &AccountHandler{ar: ar, registry: registry, profiles: profiles, timeout: timeout}
}

// ownedAccount loads the :id account. Accounts of other users look missing.
func (h *AccountHandler) ownedAccount(c *fiber.Ctx) (*models.Account, error) {
	id, err := paramID(c)
	if err != nil {
		return nil, err
	}
	account, err := h.ar.GetByID(c.Context(), id)
	if err != nil {
		return nil, err
	}
	if account == nil || !account.IsOwnedBy(GetUserID(c)) {
		return nil, service.ErrAccountNotFound
	}
	return account, nil
}

func (h *AccountHandler) CreateAccount(c *fiber.Ctx) error {
	var req transfer.AccountCreation
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	accountType := models.AccountType(req.AccountType)
	if !h.registry.Supports(accountType) {
		return errorResponse(c, adapter.ErrUnsupportedAccountType)
	}

	account := &models.Account{
		UserID:        GetUserID(c),
		AccountType:   accountType,
		AccountStatus: models.AccountStatusPending,
	}
	id, err := h.ar.Create(c.Context(), nil, account)
	if err != nil {
		return errorResponse(c, err)
	}
	account.ID = id

	return c.Status(fiber.StatusCreated).JSON(account)
}

// SetCredential stores a token the owner obtained from the network.
func (h *AccountHandler) SetCredential(c *fiber.Ctx) error {
	account, err := h.ownedAccount(c)
	if err != nil {
		return errorResponse(c, err)
	}

	var req transfer.AccountCredential
	if err := c.BodyParser(&req); err != nil || req.Token == nil || req.Token.AccessToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "token.access_token is required",
		})
	}

	sealed, err := h.registry.EncodeCredential(req.Token)
	if err != nil {
		return errorResponse(c, err)
	}
	if err := h.ar.SetCredential(c.Context(), account.ID, sealed); err != nil {
		return errorResponse(c, err)
	}
	h.profiles.Invalidate(account.ID)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Credential saved",
	})
}

func (h *AccountHandler) Profile(c *fiber.Ctx) error {
	account, err := h.ownedAccount(c)
	if err != nil {
		return errorResponse(c, err)
	}
	ad, err := h.registry.Resolve(account)
	if err != nil {
		return errorResponse(c, err)
	}
	if !ad.IsReadyToPost() {
		return errorResponse(c, adapter.ErrNotAuthenticated)
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.timeout)
	defer cancel()
	profile, err := h.profiles.Get(ctx, account.ID, ad)
	if err != nil {
		return errorResponse(c, err)
	}

	if profile.Username != "" && profile.Username != models.StringValue(account.Username) {
		if err := h.ar.SetUsername(c.Context(), account.ID, profile.Username); err != nil {
			slog.Info(err.Error())
		}
	}

	return c.Status(fiber.StatusOK).JSON(transfer.AccountProfile{
		AccountID:   account.ID,
		AccountType: string(account.AccountType),
		Username:    profile.Username,
		AvatarURL:   profile.AvatarURL,
		ProfileURL:  profile.ProfileURL,
		Ready:       account.AccountStatus != models.AccountStatusTrashed,
	})
}

func (h *AccountHandler) Search(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "q is required",
		})
	}

	account, err := h.ownedAccount(c)
	if err != nil {
		return errorResponse(c, err)
	}
	ad, err := h.registry.Resolve(account)
	if err != nil {
		return errorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.timeout)
	defer cancel()
	usernames, err := ad.SearchUsernames(ctx, query)
	if err != nil {
		return errorResponse(c, err)
	}
	if usernames == nil {
		usernames = []string{}
	}

	return c.Status(fiber.StatusOK).JSON(transfer.UsernameSearch{
		Query:     query,
		Usernames: usernames,
	})
}

func (h *AccountHandler) RemoveAccount(c *fiber.Ctx) error {
	account, err := h.ownedAccount(c)
	if err != nil {
		return errorResponse(c, err)
	}
	if err := h.ar.Remove(c.Context(), account.ID); err != nil {
		return errorResponse(c, err)
	}
	h.profiles.Invalidate(account.ID)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Account removed",
	})
}
