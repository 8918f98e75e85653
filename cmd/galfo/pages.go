package main

import (
	"html/template"
	"net/http"

	"github.com/hazyhaar/galfo/feedback"
	"github.com/hazyhaar/galfo/shield"
)

var loginTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="fr"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>Connexion — HOROS</title>
<link rel="stylesheet" href="/static/gallery.css">
</head><body>
<h1>Connexion</h1>
{{- with .Flash}}
<p class="flash flash-{{.Type}}">{{.Message}}</p>
{{- end}}
<form method="post" action="/login">
<label>Identifiant <input type="text" name="username" autocomplete="username" required></label>
<label>Mot de passe <input type="password" name="password" autocomplete="current-password" required></label>
<button type="submit">Se connecter</button>
</form>
</body></html>`))

func loginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	loginTmpl.Execute(w, struct{ Flash *shield.FlashMessage }{shield.GetFlash(r.Context())})
}

var accountTmpl = template.Must(template.New("account").Parse(`<!DOCTYPE html>
<html lang="fr"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>Mon compte — HOROS</title>
<link rel="stylesheet" href="/static/gallery.css">
</head><body>
<h1>Mon compte</h1>
{{- with .Flash}}
<p class="flash flash-{{.Type}}">{{.Message}}</p>
{{- end}}
<form method="post" action="/account/password">
<label>Mot de passe actuel <input type="password" name="current_password" autocomplete="current-password" required></label>
<label>Nouveau mot de passe <input type="password" name="new_password" autocomplete="new-password" required></label>
<label>Confirmation <input type="password" name="new_password_confirm" autocomplete="new-password" required></label>
<button type="submit">Changer le mot de passe</button>
</form>
<form method="post" action="/logout">
<button type="submit">Se déconnecter</button>
</form>
<p><a href="/gallery">Retour à la galerie</a></p>
</body></html>`))

func accountPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	accountTmpl.Execute(w, struct{ Flash *shield.FlashMessage }{shield.GetFlash(r.Context())})
}

var adminTmpl = template.Must(template.New("admin").Parse(`<!DOCTYPE html>
<html lang="fr"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>Administration — HOROS</title>
<link rel="stylesheet" href="/static/gallery.css">
</head><body>
<h1>Administration</h1>
<section>
<h2>Maintenance</h2>
<p>État : {{if .Maintenance}}<strong>activée</strong>{{else}}désactivée{{end}}</p>
<form method="post" action="/admin/maintenance">
<label><input type="checkbox" name="active" value="1"{{if .Maintenance}} checked{{end}}> Activer la maintenance</label>
<label>Message <input type="text" name="message" value="{{.MaintenanceMsg}}"></label>
<button type="submit">Appliquer</button>
</form>
</section>
<section>
<h2>Commentaires</h2>
<form method="post" action="/admin/feedback">
<label><input type="checkbox" name="enabled" value="1"{{if .Feedback.Enabled}} checked{{end}}> Autoriser les commentaires</label>
<label>Invite <input type="text" name="prompt" value="{{.Feedback.Prompt}}"></label>
<button type="submit">Enregistrer</button>
</form>
</section>
</body></html>`))

func adminPage(mm *shield.MaintenanceMode, widget *feedback.Widget) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := widget.Settings()
		if err != nil {
			http.Error(w, "erreur interne", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		adminTmpl.Execute(w, struct {
			Maintenance    bool
			MaintenanceMsg string
			Feedback       feedback.Settings
		}{mm.Active(), mm.Message(), settings})
	}
}
