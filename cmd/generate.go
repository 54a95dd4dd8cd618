package main

import (
	"encoding/json"
	"os"

	srv "github.com/mohammad-safakhou/aeoengine/internal/server"
	"github.com/spf13/cobra"
)

func generateCMD(cfgPath *string) *cobra.Command {
	var generate = &cobra.Command{
		Use:   "generate",
		Short: "Generate content without the HTTP server",
	}
	generate.AddCommand(generateBlogCMD(cfgPath), generateSocialCMD(cfgPath))
	return generate
}

func generateBlogCMD(cfgPath *string) *cobra.Command {
	var in srv.BlogInput
	var email, brand string
	var blog = &cobra.Command{
		Use:   "blog",
		Short: "Run the blog flow and store the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if email != "" {
				in.EmailID = &email
			}
			if brand != "" {
				in.BrandName = &brand
			}
			rec, res, err := a.service.GenerateBlog(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"record": rec, "usage": res.Usage, "stages": res.Stages})
		},
	}
	blog.Flags().StringVar(&in.Topic, "topic", "", "blog topic")
	blog.Flags().StringVar(&in.Prompt, "prompt", "", "free-form brief; the topic is distilled from it")
	blog.Flags().StringVar(&in.UserID, "user-id", "", "owner id")
	blog.Flags().StringVar(&in.CompanyURL, "company-url", "", "target company url")
	blog.Flags().StringVar(&email, "email", "", "contact email")
	blog.Flags().StringVar(&brand, "brand", "", "brand name")
	_ = blog.MarkFlagRequired("user-id")
	_ = blog.MarkFlagRequired("company-url")
	return blog
}

func generateSocialCMD(cfgPath *string) *cobra.Command {
	var in srv.SocialInput
	var social = &cobra.Command{
		Use:   "social",
		Short: "Run the social flow for one platform and store the post",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			rec, res, err := a.service.GenerateSocial(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"content": res.Text, "record_id": rec.ID, "usage": res.Usage})
		},
	}
	social.Flags().StringVar(&in.Topic, "topic", "", "post topic")
	social.Flags().StringVar(&in.Platform, "platform", "", "twitter, linkedin or reddit")
	social.Flags().StringVar(&in.UserID, "user-id", "", "owner id")
	social.Flags().StringVar(&in.CompanyURL, "company-url", "", "target company url")
	for _, f := range []string{"topic", "platform", "user-id", "company-url"} {
		_ = social.MarkFlagRequired(f)
	}
	return social
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
