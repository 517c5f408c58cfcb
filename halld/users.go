package halld

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/httpapi"
	"github.com/studyhall/studyhall/halld/httpmw"
	"github.com/studyhall/studyhall/hallsdk"
)

// firstUser reports whether the bootstrap account exists yet.
func (api *API) firstUser(rw http.ResponseWriter, r *http.Request) {
	userCount, err := api.Database.GetUserCount(r.Context())
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("get user count: %s", err.Error()),
		})
		return
	}
	if userCount == 0 {
		httpapi.Write(rw, http.StatusNotFound, httpapi.Response{
			Message: "the initial user has not been created",
		})
		return
	}
	httpapi.Write(rw, http.StatusOK, httpapi.Response{
		Message: "the initial user has already been created",
	})
}

// postFirstUser creates the bootstrap account. Only valid while the server
// has no users at all.
func (api *API) postFirstUser(rw http.ResponseWriter, r *http.Request) {
	var createUser hallsdk.CreateFirstUserRequest
	if !httpapi.Read(rw, r, &createUser) {
		return
	}
	userCount, err := api.Database.GetUserCount(r.Context())
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("get user count: %s", err.Error()),
		})
		return
	}
	if userCount != 0 {
		httpapi.Write(rw, http.StatusConflict, httpapi.Response{
			Message: "the initial user has already been created",
		})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(createUser.Password), bcrypt.DefaultCost)
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("hash password: %s", err.Error()),
		})
		return
	}
	user, err := api.Database.InsertUser(r.Context(), database.InsertUserParams{
		ID:             uuid.New(),
		Email:          createUser.Email,
		Username:       createUser.Username,
		HashedPassword: hashedPassword,
		CreatedAt:      database.Now(),
	})
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("insert user: %s", err.Error()),
		})
		return
	}

	httpapi.Write(rw, http.StatusCreated, hallsdk.CreateFirstUserResponse{
		UserID: user.ID,
	})
}

// postLogin exchanges an email and password for a session token.
func (api *API) postLogin(rw http.ResponseWriter, r *http.Request) {
	var login hallsdk.LoginRequest
	if !httpapi.Read(rw, r, &login) {
		return
	}
	user, err := api.Database.GetUserByEmail(r.Context(), login.Email)
	if errors.Is(err, sql.ErrNoRows) {
		// Same response as a bad password, so emails cannot be probed.
		httpapi.Write(rw, http.StatusUnauthorized, httpapi.Response{
			Message: "invalid email or password",
		})
		return
	}
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("get user: %s", err.Error()),
		})
		return
	}
	err = bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(login.Password))
	if err != nil {
		httpapi.Write(rw, http.StatusUnauthorized, httpapi.Response{
			Message: "invalid email or password",
		})
		return
	}

	sessionToken, err := api.createSessionToken(r, user)
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("create session token: %s", err.Error()),
		})
		return
	}
	http.SetCookie(rw, &http.Cookie{
		Name:     hallsdk.SessionTokenCookie,
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   api.SecureAuthCookie,
	})
	httpapi.Write(rw, http.StatusCreated, hallsdk.LoginResponse{
		SessionToken: sessionToken,
	})
}

// postLogout deletes the session key and clears the cookie.
func (api *API) postLogout(rw http.ResponseWriter, r *http.Request) {
	apiKey := httpmw.APIKey(r)
	err := api.Database.DeleteAPIKeyByID(r.Context(), apiKey.ID)
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("delete session: %s", err.Error()),
		})
		return
	}
	http.SetCookie(rw, &http.Cookie{
		Name:   hallsdk.SessionTokenCookie,
		Path:   "/",
		MaxAge: -1,
	})
	httpapi.Write(rw, http.StatusOK, httpapi.Response{
		Message: "logged out",
	})
}

func (api *API) userMe(rw http.ResponseWriter, r *http.Request) {
	user := httpmw.AuthedUser(r)
	httpapi.Write(rw, http.StatusOK, convertUser(user))
}

// createSessionToken mints an opaque "<id>-<secret>" token and stores the
// sha256 of the secret. Hex id, so the first hyphen always splits cleanly.
func (api *API) createSessionToken(r *http.Request, user database.User) (string, error) {
	keyID, err := randomHex(5)
	if err != nil {
		return "", err
	}
	keySecret, err := randomHex(22)
	if err != nil {
		return "", err
	}
	hashed := sha256.Sum256([]byte(keySecret))

	now := database.Now()
	_, err = api.Database.InsertAPIKey(r.Context(), database.InsertAPIKeyParams{
		ID:           keyID,
		HashedSecret: hashed[:],
		UserID:       user.ID,
		LastUsed:     now,
		ExpiresAt:    now.Add(api.SessionDuration),
		CreatedAt:    now,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", keyID, keySecret), nil
}

func randomHex(bytes int) (string, error) {
	buf := make([]byte, bytes)
	_, err := rand.Read(buf)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func convertUser(user database.User) hallsdk.User {
	return hallsdk.User{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		CreatedAt: user.CreatedAt,
	}
}
